package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketchat/internal/app/dto"
	"marketchat/internal/app/session"
	"marketchat/internal/domain/chat"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("rest: not found")

// Config defines HTTP client settings.
type Config struct {
	BaseURL     string
	CallTimeout time.Duration
}

// Client consumes the message server's REST API. It implements the
// persistence collaborator the session core depends on.
type Client struct {
	base        string
	http        *http.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewClient builds a client for the given base URL.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("rest: base url required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, http: httpClient, callTimeout: callTimeout, logger: logger}, nil
}

// FetchConversations lists the user's conversations.
func (c *Client) FetchConversations(ctx context.Context, currentUserID string) ([]chat.Conversation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/conversations?user_id=%s", c.base, url.QueryEscape(currentUserID))
	var payload dto.ConversationList
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(payload.Items))
	for _, item := range payload.Items {
		conv, err := toConversation(item, currentUserID)
		if err != nil {
			c.logger.Warn("skipping conversation with bad key", "key", item.Key, "error", err)
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// FetchMessages returns the history between the current user and otherUserID.
func (c *Client) FetchMessages(ctx context.Context, currentUserID, otherUserID string) ([]chat.Message, error) {
	endpoint := fmt.Sprintf("%s/api/v1/messages?user_id=%s&other_id=%s",
		c.base, url.QueryEscape(currentUserID), url.QueryEscape(otherUserID))
	var payload dto.ChatMessageList
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(payload.Items))
	for _, item := range payload.Items {
		out = append(out, toMessage(item))
	}
	return out, nil
}

// CreateMessage persists a message; the server assigns id and timestamp.
func (c *Client) CreateMessage(ctx context.Context, req session.CreateMessageRequest) (chat.Message, error) {
	body := dto.CreateMessage{
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		Body:            req.Body,
		Attachments:     req.AttachmentURLs,
		ConversationKey: req.ConversationKey,
		RelatedItemID:   req.RelatedItemID,
	}
	var payload dto.ChatMessage
	if err := c.call(ctx, http.MethodPost, c.base+"/api/v1/messages", body, &payload); err != nil {
		return chat.Message{}, err
	}
	return toMessage(payload), nil
}

// MarkConversationRead resets the user's unread counter server-side.
func (c *Client) MarkConversationRead(ctx context.Context, conversationKey, userID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/conversations/%s/read", c.base, url.PathEscape(conversationKey))
	return c.call(ctx, http.MethodPost, endpoint, dto.MarkRead{UserID: userID}, nil)
}

// DeleteMessage removes a message permanently.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/messages/%s", c.base, url.PathEscape(messageID))
	return c.call(ctx, http.MethodDelete, endpoint, nil, nil)
}

// FetchUserProfile resolves a counterpart's display profile.
func (c *Client) FetchUserProfile(ctx context.Context, userID string) (chat.Profile, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s/profile", c.base, url.PathEscape(userID))
	var payload dto.Profile
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return chat.Profile{}, err
	}
	return chat.Profile{ID: payload.ID, Name: payload.Name, AvatarURL: payload.AvatarURL}, nil
}

// call issues one JSON request with the configured per-call timeout.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(callCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rest: %s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode response: %w", err)
	}
	return nil
}

func toConversation(item dto.Conversation, currentUserID string) (chat.Conversation, error) {
	other, err := chat.OtherParticipant(item.Key, currentUserID)
	if err != nil {
		return chat.Conversation{}, err
	}
	conv := chat.NewConversation(currentUserID, other)
	conv.RelatedItemID = item.RelatedItemID
	conv.UnreadCount = item.UnreadCount
	conv.OtherUser = chat.Profile{ID: other}
	if item.LastMessage != nil {
		conv.Last = &chat.LastMessage{
			Preview:  item.LastMessage.Preview,
			SenderID: item.LastMessage.SenderID,
			SentAt:   item.LastMessage.SentAt,
		}
	}
	return conv, nil
}

func toMessage(item dto.ChatMessage) chat.Message {
	delivery := chat.DeliverySent
	if item.Read {
		delivery = chat.DeliveryRead
	}
	return chat.Message{
		ID:              item.ID,
		ConversationKey: item.ConversationKey,
		SenderID:        item.SenderID,
		RecipientID:     item.RecipientID,
		Body:            item.Body,
		Attachments:     append([]string(nil), item.Attachments...),
		CreatedAt:       item.CreatedAt,
		Delivery:        delivery,
	}
}

var _ session.Persistence = (*Client)(nil)
