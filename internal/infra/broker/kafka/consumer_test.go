package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/session"
	"marketchat/internal/domain/chat"
)

type recordingListener struct {
	created []chat.Message
	typing  []session.TypingEvent
	deleted []session.MessageDeletedEvent
	read    []session.ReadReceiptEvent
}

func (l *recordingListener) HandleMessageCreated(_ context.Context, m chat.Message) {
	l.created = append(l.created, m)
}

func (l *recordingListener) HandleTypingChanged(ev session.TypingEvent) {
	l.typing = append(l.typing, ev)
}

func (l *recordingListener) HandleMessageDeleted(ev session.MessageDeletedEvent) {
	l.deleted = append(l.deleted, ev)
}

func (l *recordingListener) HandleReadReceipt(ev session.ReadReceiptEvent) {
	l.read = append(l.read, ev)
}

func newTestConsumer(listener Listener) *Consumer {
	return &Consumer{listener: listener, logger: slog.Default()}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return payload
}

func TestDispatchMessageCreated(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	consumer.dispatch(context.Background(), mustMarshal(t, envelope{
		Type:       EventMessageCreated,
		OccurredAt: at,
		Message: &messagePayload{
			ID:              "srv-1",
			ConversationKey: "alice:bob",
			SenderID:        "bob",
			RecipientID:     "alice",
			Body:            "hello",
			CreatedAt:       at,
		},
	}))

	require.Len(t, listener.created, 1)
	m := listener.created[0]
	assert.Equal(t, "srv-1", m.ID)
	assert.Equal(t, "alice:bob", m.ConversationKey)
	assert.Equal(t, chat.DeliverySent, m.Delivery)
}

func TestDispatchReadFlagMapsToDelivery(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)

	consumer.dispatch(context.Background(), mustMarshal(t, envelope{
		Type:    EventMessageCreated,
		Message: &messagePayload{ID: "srv-1", ConversationKey: "alice:bob", SenderID: "bob", Read: true},
	}))

	require.Len(t, listener.created, 1)
	assert.Equal(t, chat.DeliveryRead, listener.created[0].Delivery)
}

func TestDispatchTypingChanged(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)

	consumer.dispatch(context.Background(), mustMarshal(t, envelope{
		Type:   EventTypingChanged,
		Typing: &typingPayload{ConversationKey: "alice:bob", UserID: "bob", IsTyping: true},
	}))

	require.Len(t, listener.typing, 1)
	assert.True(t, listener.typing[0].IsTyping)
	assert.Equal(t, "bob", listener.typing[0].UserID)
}

func TestDispatchMessageDeleted(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)

	consumer.dispatch(context.Background(), mustMarshal(t, envelope{
		Type:    EventMessageDeleted,
		Deleted: &deletedPayload{ConversationKey: "alice:bob", MessageID: "srv-1"},
	}))

	require.Len(t, listener.deleted, 1)
	assert.Equal(t, "srv-1", listener.deleted[0].MessageID)
}

func TestDispatchReadReceipt(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)

	consumer.dispatch(context.Background(), mustMarshal(t, envelope{
		Type: EventReadReceipt,
		Read: &readPayload{ConversationKey: "alice:bob", ReadByUserID: "bob"},
	}))

	require.Len(t, listener.read, 1)
	assert.Equal(t, "bob", listener.read[0].ReadByUserID)
}

func TestDispatchDropsBadPayloads(t *testing.T) {
	listener := &recordingListener{}
	consumer := newTestConsumer(listener)
	ctx := context.Background()

	consumer.dispatch(ctx, []byte("not json"))
	consumer.dispatch(ctx, mustMarshal(t, envelope{Type: EventMessageCreated})) // missing payload
	consumer.dispatch(ctx, mustMarshal(t, envelope{Type: "unknown-type"}))

	assert.Empty(t, listener.created)
	assert.Empty(t, listener.typing)
	assert.Empty(t, listener.deleted)
	assert.Empty(t, listener.read)
}

func TestMessagePayloadRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	original := chat.Message{
		ID:              "srv-1",
		ConversationKey: "alice:bob",
		SenderID:        "alice",
		RecipientID:     "bob",
		Body:            "hi",
		Attachments:     []string{"https://cdn.test/a.jpg"},
		CreatedAt:       at,
		Delivery:        chat.DeliveryRead,
	}

	got := toMessagePayload(original).toMessage()
	assert.Equal(t, original, got)
}
