package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"marketchat/internal/app/session"
	"marketchat/internal/domain/chat"
)

// Listener receives decoded inbound events. *session.Router satisfies it.
type Listener interface {
	HandleMessageCreated(ctx context.Context, m chat.Message)
	HandleTypingChanged(ev session.TypingEvent)
	HandleMessageDeleted(ev session.MessageDeletedEvent)
	HandleReadReceipt(ev session.ReadReceiptEvent)
}

// Consumer subscribes a listener to the chat event topic via a consumer group.
// Delivery is at least once; the listener's handlers are idempotent.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	listener Listener
	logger   *slog.Logger
}

// NewConsumer joins the given consumer group.
func NewConsumer(brokers []string, groupID, topic string, cfg *sarama.Config, listener Listener, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, topic: topic, listener: listener, logger: logger}, nil
}

// Run consumes until the context is cancelled, rejoining after rebalances.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, groupHandler{c}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	c *Consumer
}

func (h groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		// A bad payload is dropped and marked; it must never take down
		// the subscription.
		h.c.dispatch(sess.Context(), record.Value)
		sess.MarkMessage(record, "")
	}
	return nil
}

// dispatch decodes one envelope and routes it to the listener.
func (c *Consumer) dispatch(ctx context.Context, payload []byte) {
	var evt envelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		c.logger.Warn("dropping undecodable event", "error", err)
		return
	}
	switch evt.Type {
	case EventMessageCreated:
		if evt.Message == nil {
			c.logger.Warn("dropping message event without payload")
			return
		}
		c.listener.HandleMessageCreated(ctx, evt.Message.toMessage())
	case EventTypingChanged:
		if evt.Typing == nil {
			c.logger.Warn("dropping typing event without payload")
			return
		}
		c.listener.HandleTypingChanged(session.TypingEvent{
			ConversationKey: evt.Typing.ConversationKey,
			UserID:          evt.Typing.UserID,
			IsTyping:        evt.Typing.IsTyping,
		})
	case EventMessageDeleted:
		if evt.Deleted == nil {
			c.logger.Warn("dropping delete event without payload")
			return
		}
		c.listener.HandleMessageDeleted(session.MessageDeletedEvent{
			ConversationKey: evt.Deleted.ConversationKey,
			MessageID:       evt.Deleted.MessageID,
		})
	case EventReadReceipt:
		if evt.Read == nil {
			c.logger.Warn("dropping read receipt without payload")
			return
		}
		c.listener.HandleReadReceipt(session.ReadReceiptEvent{
			ConversationKey: evt.Read.ConversationKey,
			ReadByUserID:    evt.Read.ReadByUserID,
		})
	default:
		c.logger.Debug("ignoring unknown event type", "type", evt.Type)
	}
}
