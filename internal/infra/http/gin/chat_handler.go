package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	"marketchat/internal/domain/chat"
	mongostore "marketchat/internal/infra/db/mongo"
)

// ChatStore is the persistence surface the handler needs.
type ChatStore interface {
	CreateMessage(ctx context.Context, p mongostore.CreateMessageParams) (*mongostore.Message, error)
	ListConversations(ctx context.Context, userID string) ([]mongostore.Conversation, error)
	ListMessages(ctx context.Context, conversationKey string) ([]mongostore.Message, error)
	MarkConversationRead(ctx context.Context, conversationKey, userID string) error
	DeleteMessage(ctx context.Context, messageID string) (*mongostore.Message, error)
	GetProfile(ctx context.Context, userID string) (*mongostore.Profile, error)
}

// EventPublisher fans persisted transitions out to the event stream.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, m chat.Message) error
	PublishReadReceipt(ctx context.Context, conversationKey, readByUserID string) error
	PublishMessageDeleted(ctx context.Context, conversationKey, messageID string) error
}

// ChatHTTP exposes the messaging endpoints.
type ChatHTTP interface {
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	CreateMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
	GetProfile(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat store and the event stream.
type ChatHandler struct {
	Store  ChatStore
	Events EventPublisher
	Logger *slog.Logger
}

// ListConversations returns the caller's threads, most recent first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	conversations, err := h.Store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.respondStoreError(c, err, "list conversations", "user_id", userID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(conversations))}
	for _, conv := range conversations {
		item := dto.Conversation{
			Key:           conv.Key,
			Participants:  append([]string(nil), conv.Participants...),
			RelatedItemID: conv.RelatedItemID,
			UnreadCount:   conv.Unread[userID],
		}
		if !conv.LastMessageAt.IsZero() {
			item.LastMessage = &dto.LastMessage{
				Preview:  conv.LastPreview,
				SenderID: conv.LastSenderID,
				SentAt:   conv.LastMessageAt,
			}
		}
		collection.Items = append(collection.Items, item)
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages returns the history between two users, ascending by time.
func (h ChatHandler) ListMessages(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	otherID := strings.TrimSpace(c.Query("other_id"))
	if userID == "" || otherID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and other_id are required"})
		return
	}
	key := chat.CanonicalKey(userID, otherID)
	messages, err := h.Store.ListMessages(c.Request.Context(), key)
	if err != nil {
		h.respondStoreError(c, err, "list messages", "conversation_key", key)
		return
	}
	collection := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		collection.Items = append(collection.Items, toChatMessageDTO(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// CreateMessage persists a message, assigns its permanent id and timestamp,
// and fans a message-created event out to the stream.
func (h ChatHandler) CreateMessage(c *gin.Context) {
	var req dto.CreateMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.SenderID = strings.TrimSpace(req.SenderID)
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.SenderID == "" || req.RecipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id and recipient_id are required"})
		return
	}
	if strings.TrimSpace(req.Body) == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body or attachments required"})
		return
	}
	key := strings.TrimSpace(req.ConversationKey)
	if key == "" {
		key = chat.CanonicalKey(req.SenderID, req.RecipientID)
	}

	preview := chat.Message{Body: req.Body, Attachments: req.Attachments}.Preview()
	msg, err := h.Store.CreateMessage(c.Request.Context(), mongostore.CreateMessageParams{
		ConversationKey: key,
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		Body:            strings.TrimSpace(req.Body),
		Attachments:     req.Attachments,
		RelatedItemID:   req.RelatedItemID,
		Preview:         preview,
	})
	if err != nil {
		h.respondStoreError(c, err, "create message", "conversation_key", key)
		return
	}
	h.publish(c.Request.Context(), "message created", func(ctx context.Context) error {
		return h.Events.PublishMessageSent(ctx, toDomainMessage(*msg))
	})
	c.JSON(http.StatusCreated, toChatMessageDTO(*msg))
}

// MarkRead resets the reader's unread counter and emits a read receipt.
func (h ChatHandler) MarkRead(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation key is required"})
		return
	}
	var req dto.MarkRead
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.Store.MarkConversationRead(c.Request.Context(), key, req.UserID); err != nil {
		h.respondStoreError(c, err, "mark read", "conversation_key", key)
		return
	}
	h.publish(c.Request.Context(), "read receipt", func(ctx context.Context) error {
		return h.Events.PublishReadReceipt(ctx, key, req.UserID)
	})
	c.JSON(http.StatusOK, gin.H{"read_at": time.Now().UTC()})
}

// DeleteMessage removes a message permanently and propagates the removal.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return
	}
	msg, err := h.Store.DeleteMessage(c.Request.Context(), messageID)
	if err != nil {
		h.respondStoreError(c, err, "delete message", "message_id", messageID)
		return
	}
	h.publish(c.Request.Context(), "message deleted", func(ctx context.Context) error {
		return h.Events.PublishMessageDeleted(ctx, msg.ConversationKey, msg.ID)
	})
	c.Status(http.StatusNoContent)
}

// GetProfile returns a user's public profile.
func (h ChatHandler) GetProfile(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	profile, err := h.Store.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.respondStoreError(c, err, "load profile", "user_id", userID)
		return
	}
	c.JSON(http.StatusOK, dto.Profile{ID: profile.ID, Name: profile.Name, AvatarURL: profile.AvatarURL})
}

// publish emits one event, logging rather than failing the request: the write
// already happened and clients reconcile through fetches.
func (h ChatHandler) publish(ctx context.Context, action string, fn func(context.Context) error) {
	if h.Events == nil {
		return
	}
	if err := fn(ctx); err != nil && h.Logger != nil {
		h.Logger.Warn("event publish failed", "action", action, "error", err)
	}
}

func (h ChatHandler) respondStoreError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat store call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	switch {
	case errors.Is(err, mongostore.ErrMessageNotFound), errors.Is(err, mongostore.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat storage unavailable"})
	}
}

func toChatMessageDTO(m mongostore.Message) dto.ChatMessage {
	return dto.ChatMessage{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Body:            m.Body,
		Attachments:     append([]string(nil), m.Attachments...),
		CreatedAt:       m.CreatedAt,
		Read:            m.Read,
	}
}

func toDomainMessage(m mongostore.Message) chat.Message {
	delivery := chat.DeliverySent
	if m.Read {
		delivery = chat.DeliveryRead
	}
	return chat.Message{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Body:            m.Body,
		Attachments:     append([]string(nil), m.Attachments...),
		CreatedAt:       m.CreatedAt,
		Delivery:        delivery,
	}
}

var _ ChatHTTP = ChatHandler{}
