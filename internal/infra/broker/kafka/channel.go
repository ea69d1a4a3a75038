package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketchat/internal/app/session"
	"marketchat/internal/domain/chat"
)

// Event type discriminators on the wire. Outbound "message-sent" emissions
// and server-side fan-out share the message-created type: the stream carries
// one canonical vocabulary.
const (
	EventMessageCreated = "message-created"
	EventTypingChanged  = "typing-changed"
	EventMessageDeleted = "message-deleted"
	EventReadReceipt    = "read-receipt"
)

// envelope is the JSON frame for every chat event on the topic.
type envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Message    *messagePayload `json:"message,omitempty"`
	Typing     *typingPayload  `json:"typing,omitempty"`
	Deleted    *deletedPayload `json:"deleted,omitempty"`
	Read       *readPayload    `json:"read,omitempty"`
}

type messagePayload struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	SenderID        string    `json:"sender_id"`
	RecipientID     string    `json:"recipient_id"`
	Body            string    `json:"body,omitempty"`
	Attachments     []string  `json:"attachments,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Read            bool      `json:"read"`
}

type typingPayload struct {
	ConversationKey string `json:"conversation_key"`
	UserID          string `json:"user_id"`
	IsTyping        bool   `json:"is_typing"`
}

type deletedPayload struct {
	ConversationKey string `json:"conversation_key,omitempty"`
	MessageID       string `json:"message_id"`
}

type readPayload struct {
	ConversationKey string `json:"conversation_key"`
	ReadByUserID    string `json:"read_by_user_id"`
}

// Channel is the outbound half of the event stream over one Kafka topic.
// Emissions are best effort from the caller's point of view; persistence is
// the source of truth and a failed publish is reported, not retried here.
type Channel struct {
	producer *Producer
	topic    string
}

// NewChannel wraps a producer for the given topic.
func NewChannel(producer *Producer, topic string) *Channel {
	return &Channel{producer: producer, topic: topic}
}

// PublishMessageSent emits a message-created event for a persisted message.
func (c *Channel) PublishMessageSent(_ context.Context, m chat.Message) error {
	return c.publish(m.ConversationKey, envelope{
		Type:       EventMessageCreated,
		OccurredAt: time.Now().UTC(),
		Message:    toMessagePayload(m),
	})
}

// PublishTyping emits a typing-changed event.
func (c *Channel) PublishTyping(_ context.Context, ev session.TypingEvent) error {
	return c.publish(ev.ConversationKey, envelope{
		Type:       EventTypingChanged,
		OccurredAt: time.Now().UTC(),
		Typing: &typingPayload{
			ConversationKey: ev.ConversationKey,
			UserID:          ev.UserID,
			IsTyping:        ev.IsTyping,
		},
	})
}

// PublishMessageDeleted emits a message-deleted event.
func (c *Channel) PublishMessageDeleted(_ context.Context, conversationKey, messageID string) error {
	return c.publish(conversationKey, envelope{
		Type:       EventMessageDeleted,
		OccurredAt: time.Now().UTC(),
		Deleted:    &deletedPayload{ConversationKey: conversationKey, MessageID: messageID},
	})
}

// PublishReadReceipt emits a read-receipt event for a conversation.
func (c *Channel) PublishReadReceipt(_ context.Context, conversationKey, readByUserID string) error {
	return c.publish(conversationKey, envelope{
		Type:       EventReadReceipt,
		OccurredAt: time.Now().UTC(),
		Read:       &readPayload{ConversationKey: conversationKey, ReadByUserID: readByUserID},
	})
}

func (c *Channel) publish(key string, evt envelope) error {
	if c == nil || c.producer == nil {
		return fmt.Errorf("kafka: channel not connected")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: encode %s event: %w", evt.Type, err)
	}
	return c.producer.publish(c.topic, key, payload)
}

func toMessagePayload(m chat.Message) *messagePayload {
	return &messagePayload{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		RecipientID:     m.RecipientID,
		Body:            m.Body,
		Attachments:     append([]string(nil), m.Attachments...),
		CreatedAt:       m.CreatedAt,
		Read:            m.IsRead(),
	}
}

func (p *messagePayload) toMessage() chat.Message {
	delivery := chat.DeliverySent
	if p.Read {
		delivery = chat.DeliveryRead
	}
	return chat.Message{
		ID:              p.ID,
		ConversationKey: p.ConversationKey,
		SenderID:        p.SenderID,
		RecipientID:     p.RecipientID,
		Body:            p.Body,
		Attachments:     append([]string(nil), p.Attachments...),
		CreatedAt:       p.CreatedAt,
		Delivery:        delivery,
	}
}

var _ session.EventChannel = (*Channel)(nil)
