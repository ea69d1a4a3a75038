package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("mongo: message not found")
	// ErrProfileNotFound is returned when a user has no stored profile.
	ErrProfileNotFound = errors.New("mongo: profile not found")
)

// ChatStore persists conversations, messages and profiles. Conversations are
// keyed by the canonical conversation key; unread counters live per user in
// the conversation document.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	profiles      *mongo.Collection
}

// NewChatStore prepares collections and indexes.
func NewChatStore(db *mongo.Database) *ChatStore {
	messages := db.Collection("chat_messages")
	_, _ = messages.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_key", Value: 1}, {Key: "created_at", Value: 1}},
	})
	conversations := db.Collection("chat_conversations")
	_, _ = conversations.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
	})
	return &ChatStore{
		conversations: conversations,
		messages:      messages,
		profiles:      db.Collection("chat_profiles"),
	}
}

// Conversation is the stored thread document.
type Conversation struct {
	Key           string         `bson:"_id"`
	Participants  []string       `bson:"participants"`
	RelatedItemID string         `bson:"related_item_id,omitempty"`
	CreatedAt     time.Time      `bson:"created_at"`
	LastMessageAt time.Time      `bson:"last_message_at"`
	LastPreview   string         `bson:"last_preview"`
	LastSenderID  string         `bson:"last_sender_id"`
	Unread        map[string]int `bson:"unread"`
}

// Message is the stored message document.
type Message struct {
	ID              string    `bson:"_id"`
	ConversationKey string    `bson:"conversation_key"`
	SenderID        string    `bson:"sender_id"`
	RecipientID     string    `bson:"recipient_id"`
	Body            string    `bson:"body,omitempty"`
	Attachments     []string  `bson:"attachments,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	Read            bool      `bson:"read"`
}

// Profile is the stored public profile document.
type Profile struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	AvatarURL string `bson:"avatar_url,omitempty"`
}

// CreateMessageParams carries the fields of a create-message call.
type CreateMessageParams struct {
	ConversationKey string
	SenderID        string
	RecipientID     string
	Body            string
	Attachments     []string
	RelatedItemID   string
	Preview         string
}

// CreateMessage inserts the message and folds it into its conversation
// document: last-message snapshot moves forward, the recipient's unread
// counter grows, and the conversation is created on first contact.
func (s *ChatStore) CreateMessage(ctx context.Context, p CreateMessageParams) (*Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:              uuid.NewString(),
		ConversationKey: p.ConversationKey,
		SenderID:        p.SenderID,
		RecipientID:     p.RecipientID,
		Body:            p.Body,
		Attachments:     append([]string(nil), p.Attachments...),
		CreatedAt:       now,
		Read:            false,
	}
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("mongo: insert message: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"last_message_at": now,
			"last_preview":    p.Preview,
			"last_sender_id":  p.SenderID,
		},
		"$inc": bson.M{"unread." + p.RecipientID: 1},
		"$setOnInsert": bson.M{
			"participants":    sortedPair(p.SenderID, p.RecipientID),
			"related_item_id": p.RelatedItemID,
			"created_at":      now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.conversations.UpdateByID(ctx, p.ConversationKey, update, opts); err != nil {
		return nil, fmt.Errorf("mongo: upsert conversation: %w", err)
	}
	return &msg, nil
}

// ListConversations returns the user's threads, most recent activity first.
func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}
	var out []Conversation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo: decode conversations: %w", err)
	}
	return out, nil
}

// ListMessages returns a conversation's messages ascending by creation time.
func (s *ChatStore) ListMessages(ctx context.Context, conversationKey string) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_key": conversationKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list messages: %w", err)
	}
	var out []Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo: decode messages: %w", err)
	}
	return out, nil
}

// MarkConversationRead zeroes the reader's unread counter and flips every
// message addressed to the reader to read.
func (s *ChatStore) MarkConversationRead(ctx context.Context, conversationKey, userID string) error {
	_, err := s.conversations.UpdateByID(ctx, conversationKey,
		bson.M{"$set": bson.M{"unread." + userID: 0}})
	if err != nil {
		return fmt.Errorf("mongo: reset unread: %w", err)
	}
	_, err = s.messages.UpdateMany(ctx,
		bson.M{"conversation_key": conversationKey, "recipient_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("mongo: mark messages read: %w", err)
	}
	return nil
}

// DeleteMessage removes a message and returns the deleted document so the
// caller can fan the removal out.
func (s *ChatStore) DeleteMessage(ctx context.Context, messageID string) (*Message, error) {
	var doc Message
	err := s.messages.FindOneAndDelete(ctx, bson.M{"_id": messageID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("mongo: delete message: %w", err)
	}
	return &doc, nil
}

// GetProfile loads a user's public profile.
func (s *ChatStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var doc Profile
	if err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("mongo: load profile: %w", err)
	}
	return &doc, nil
}

// SaveProfile stores or replaces a profile; used by the fixture loader.
func (s *ChatStore) SaveProfile(ctx context.Context, p Profile) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.profiles.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
		return fmt.Errorf("mongo: save profile: %w", err)
	}
	return nil
}

func sortedPair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}
