package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/chat"
)

func testConversation(currentUserID, otherID string) chat.Conversation {
	conv := chat.NewConversation(currentUserID, otherID)
	conv.OtherUser = chat.Profile{ID: otherID}
	return conv
}

func TestLoadHistorySortsAscending(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	persistence := newFakePersistence()
	persistence.messages = []chat.Message{
		{ID: "m2", CreatedAt: base.Add(time.Minute)},
		{ID: "m1", CreatedAt: base},
		{ID: "m3", CreatedAt: base.Add(2 * time.Minute)},
	}

	store := NewMessageStore("me", persistence, nil)
	key := chat.CanonicalKey("me", "bob")
	history, err := store.LoadHistory(context.Background(), key, "bob")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "m1", history[0].ID)
	assert.Equal(t, "m2", history[1].ID)
	assert.Equal(t, "m3", history[2].ID)
}

func TestLoadHistoryStaleResponseDiscarded(t *testing.T) {
	persistence := newFakePersistence()
	persistence.messages = []chat.Message{{ID: "bob-1", CreatedAt: time.Now()}}

	store := NewMessageStore("me", persistence, nil)
	keyBob := chat.CanonicalKey("me", "bob")
	keyCarol := chat.CanonicalKey("me", "carol")

	// The user switches to carol while bob's history is still in flight.
	persistence.fetchMsgsHook = func() { store.Open(keyCarol) }

	history, err := store.LoadHistory(context.Background(), keyBob, "bob")
	require.NoError(t, err)
	assert.Nil(t, history)
	assert.Equal(t, keyCarol, store.Key())
	assert.Empty(t, store.Messages(), "stale history must not leak into the active conversation")
}

func TestLoadHistoryFetchFailure(t *testing.T) {
	persistence := newFakePersistence()
	persistence.fetchMsgsErr = errors.New("boom")

	store := NewMessageStore("me", persistence, nil)
	_, err := store.LoadHistory(context.Background(), chat.CanonicalKey("me", "bob"), "bob")
	var perr *chat.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fetch messages", perr.Op)
}

func TestOpenSwitchClearsSequence(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	keyBob := chat.CanonicalKey("me", "bob")
	store.Open(keyBob)
	store.ApplyInbound(chat.Message{ID: "srv-1", ConversationKey: keyBob, SenderID: "bob"})
	require.Len(t, store.Messages(), 1)

	store.Open(chat.CanonicalKey("me", "carol"))
	assert.Empty(t, store.Messages())

	// Re-opening the same key keeps the sequence.
	store.ApplyInbound(chat.Message{ID: "srv-2", ConversationKey: chat.CanonicalKey("me", "carol"), SenderID: "carol"})
	store.Open(chat.CanonicalKey("me", "carol"))
	assert.Len(t, store.Messages(), 1)
}

func TestInsertOptimistic(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	conv := testConversation("me", "bob")
	store.Open(conv.Key)

	m := store.InsertOptimistic(conv, chat.Draft{Body: "hi"})
	assert.NotEmpty(t, m.LocalID)
	assert.Equal(t, m.LocalID, m.ID, "optimistic entries use the temporary id in both id spaces")
	assert.Equal(t, chat.DeliveryPending, m.Delivery)
	assert.Equal(t, "me", m.SenderID)
	assert.Equal(t, "bob", m.RecipientID)

	seq := store.Messages()
	require.Len(t, seq, 1)
	assert.Equal(t, m.LocalID, seq[0].LocalID)
}

func TestInsertOptimisticForNonOpenConversation(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	store.Open(chat.CanonicalKey("me", "carol"))

	m := store.InsertOptimistic(testConversation("me", "bob"), chat.Draft{Body: "bg"})
	assert.NotEmpty(t, m.LocalID)
	assert.Empty(t, store.Messages(), "a send from a background thread must not appear in the open sequence")
}

func TestReconcileRetainsLocalID(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	conv := testConversation("me", "bob")
	store.Open(conv.Key)
	optimistic := store.InsertOptimistic(conv, chat.Draft{Body: "hi"})

	server := chat.Message{
		ID: "srv-9", ConversationKey: conv.Key, SenderID: "me", RecipientID: "bob",
		Body: "hi", CreatedAt: time.Now(), Delivery: chat.DeliverySent,
	}
	store.Reconcile(optimistic.LocalID, server)

	seq := store.Messages()
	require.Len(t, seq, 1)
	assert.Equal(t, "srv-9", seq[0].ID)
	assert.Equal(t, optimistic.LocalID, seq[0].LocalID)
	assert.Equal(t, chat.DeliverySent, seq[0].Delivery)
}

func TestReconcileAfterRollbackIsNoop(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	conv := testConversation("me", "bob")
	store.Open(conv.Key)
	optimistic := store.InsertOptimistic(conv, chat.Draft{Body: "hi"})
	store.Rollback(optimistic.LocalID)

	store.Reconcile(optimistic.LocalID, chat.Message{ID: "srv-9", ConversationKey: conv.Key})
	assert.Empty(t, store.Messages(), "reconcile must never re-insert a rolled back entry")
}

func TestRollbackRemovesOnlyItsEntry(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	conv := testConversation("me", "bob")
	store.Open(conv.Key)
	first := store.InsertOptimistic(conv, chat.Draft{Body: "one"})
	second := store.InsertOptimistic(conv, chat.Draft{Body: "two"})

	store.Rollback(first.LocalID)
	seq := store.Messages()
	require.Len(t, seq, 1)
	assert.Equal(t, second.LocalID, seq[0].LocalID)
}

func TestApplyInboundDeduplicatesByPermanentID(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	key := chat.CanonicalKey("me", "bob")
	store.Open(key)
	m := chat.Message{ID: "srv-1", ConversationKey: key, SenderID: "bob"}

	assert.True(t, store.ApplyInbound(m))
	assert.False(t, store.ApplyInbound(m))
	assert.Len(t, store.Messages(), 1)
}

func TestApplyInboundDeduplicatesByRetainedLocalID(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	conv := testConversation("me", "bob")
	store.Open(conv.Key)
	optimistic := store.InsertOptimistic(conv, chat.Draft{Body: "hi"})
	store.Reconcile(optimistic.LocalID, chat.Message{
		ID: "srv-9", ConversationKey: conv.Key, SenderID: "me", Delivery: chat.DeliverySent,
	})

	// A late duplicate delivery carrying the temporary id must still match.
	applied := store.ApplyInbound(chat.Message{
		ID: "srv-9", LocalID: optimistic.LocalID, ConversationKey: conv.Key, SenderID: "me",
	})
	assert.False(t, applied)
	assert.Len(t, store.Messages(), 1)
}

func TestApplyInboundIgnoresOtherConversations(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	store.Open(chat.CanonicalKey("me", "bob"))

	applied := store.ApplyInbound(chat.Message{
		ID: "srv-1", ConversationKey: chat.CanonicalKey("me", "carol"), SenderID: "carol",
	})
	assert.False(t, applied)
	assert.Empty(t, store.Messages())
}

func TestApplyInboundAppendsAtEnd(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMessageStore("me", newFakePersistence(), nil)
	key := chat.CanonicalKey("me", "bob")
	store.Open(key)
	store.ApplyInbound(chat.Message{ID: "srv-2", ConversationKey: key, SenderID: "bob", CreatedAt: base.Add(time.Minute)})
	// Older timestamp still lands at the tail; delivery order wins.
	store.ApplyInbound(chat.Message{ID: "srv-1", ConversationKey: key, SenderID: "bob", CreatedAt: base})

	seq := store.Messages()
	require.Len(t, seq, 2)
	assert.Equal(t, "srv-2", seq[0].ID)
	assert.Equal(t, "srv-1", seq[1].ID)
}

func TestMarkAllSentAsRead(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	key := chat.CanonicalKey("me", "bob")
	store.Open(key)
	store.ApplyInbound(chat.Message{ID: "a", ConversationKey: key, SenderID: "me", Delivery: chat.DeliverySent})
	store.ApplyInbound(chat.Message{ID: "b", ConversationKey: key, SenderID: "me", Delivery: chat.DeliveryPending})
	store.ApplyInbound(chat.Message{ID: "c", ConversationKey: key, SenderID: "bob", Delivery: chat.DeliverySent})

	changed := store.MarkAllSentAsRead("bob")
	assert.Equal(t, 1, changed)

	seq := store.Messages()
	assert.Equal(t, chat.DeliveryRead, seq[0].Delivery)
	assert.Equal(t, chat.DeliveryPending, seq[1].Delivery, "pending entries stay pending until reconciled")
	assert.Equal(t, chat.DeliverySent, seq[2].Delivery, "the reader's own messages are untouched")
}

func TestRemove(t *testing.T) {
	store := NewMessageStore("me", newFakePersistence(), nil)
	key := chat.CanonicalKey("me", "bob")
	store.Open(key)
	store.ApplyInbound(chat.Message{ID: "srv-1", ConversationKey: key, SenderID: "bob"})

	store.Remove("srv-1")
	assert.Empty(t, store.Messages())

	store.Remove("srv-1") // absent id is a no-op
	assert.Empty(t, store.Messages())
}
