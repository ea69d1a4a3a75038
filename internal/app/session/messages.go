package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
)

// MessageStore owns the ordered message sequence of the open conversation.
// Optimistic entries, inbound events and reconciliation all funnel through it
// so the dual id-space (temporary vs. permanent) is resolved in one place.
type MessageStore struct {
	mu            sync.Mutex
	currentUserID string
	activeKey     string
	seq           []chat.Message

	persistence HistoryFetcher
	now         func() time.Time
	logger      *slog.Logger
}

// NewMessageStore builds an empty store for the given user.
func NewMessageStore(currentUserID string, persistence HistoryFetcher, logger *slog.Logger) *MessageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageStore{
		currentUserID: currentUserID,
		persistence:   persistence,
		now:           time.Now,
		logger:        logger,
	}
}

// Open switches the store to a conversation and clears the previous sequence.
func (s *MessageStore) Open(conversationKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeKey == conversationKey {
		return
	}
	s.activeKey = conversationKey
	s.seq = nil
}

// Key returns the conversation the store currently holds.
func (s *MessageStore) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

// LoadHistory fetches the persisted messages for a conversation, sorts them
// ascending by creation time and replaces the sequence wholesale. A response
// that resolves after the user switched to another conversation is discarded:
// a stale load must never overwrite the now-active sequence.
func (s *MessageStore) LoadHistory(ctx context.Context, conversationKey, otherUserID string) ([]chat.Message, error) {
	s.Open(conversationKey)

	history, err := s.persistence.FetchMessages(ctx, s.currentUserID, otherUserID)
	if err != nil {
		return nil, &chat.PersistenceError{Op: "fetch messages", Err: err}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeKey != conversationKey {
		s.logger.Debug("stale history load discarded",
			"loaded_key", conversationKey, "active_key", s.activeKey)
		return nil, nil
	}
	s.seq = history
	return append([]chat.Message(nil), s.seq...), nil
}

// InsertOptimistic appends a pending entry for a draft before any network I/O
// happens. The returned message carries the temporary id used later by
// Reconcile or Rollback.
func (s *MessageStore) InsertOptimistic(conv chat.Conversation, draft chat.Draft) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	localID := chat.NewLocalID(now)
	var attachments []string
	for _, img := range draft.Images {
		attachments = append(attachments, img.Name)
	}
	m := chat.Message{
		ID:              localID,
		LocalID:         localID,
		ConversationKey: conv.Key,
		SenderID:        s.currentUserID,
		RecipientID:     conv.OtherUser.ID,
		Body:            draft.Body,
		Attachments:     attachments,
		CreatedAt:       now,
		Delivery:        chat.DeliveryPending,
	}
	if conv.Key == s.activeKey {
		s.seq = append(s.seq, m)
	}
	return m
}

// Reconcile replaces the optimistic entry matching tempID with the
// server-confirmed message. The temporary id is retained on the entry so a
// late duplicate delivery still deduplicates. When the optimistic entry is
// already gone the call is a no-op; it never re-inserts.
func (s *MessageStore) Reconcile(tempID string, server chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(tempID)
	if idx < 0 {
		return
	}
	server.LocalID = tempID
	if server.Delivery != chat.DeliveryRead {
		server.Delivery = chat.DeliverySent
	}
	s.seq[idx] = server
}

// Rollback removes the optimistic entry matching tempID after a failed send.
func (s *MessageStore) Rollback(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(tempID); idx >= 0 {
		s.seq = append(s.seq[:idx], s.seq[idx+1:]...)
	}
}

// ApplyInbound appends a message delivered over the event stream. The insert
// is idempotent: a permanent id (or retained temporary id) already present in
// the sequence makes it a no-op. The message is appended at the end even when
// its timestamp is older than the tail; stream delivery order is authoritative
// for tie-breaking, this is deliberately not a sort-by-time merge.
func (s *MessageStore) ApplyInbound(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeKey != m.ConversationKey {
		return false
	}
	for _, existing := range s.seq {
		if existing.ID == m.ID {
			return false
		}
		if m.LocalID != "" && existing.LocalID == m.LocalID {
			return false
		}
	}
	s.seq = append(s.seq, m)
	return true
}

// MarkAllSentAsRead transitions every sent message not authored by byUserID
// to read. Triggered by an inbound read receipt from the peer.
func (s *MessageStore) MarkAllSentAsRead(byUserID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.seq {
		if s.seq[i].SenderID != byUserID && s.seq[i].Delivery == chat.DeliverySent {
			s.seq[i].Delivery = chat.DeliveryRead
			changed++
		}
	}
	return changed
}

// Remove deletes a message from the sequence regardless of state. Used both
// for local delete confirmation and propagated remote deletion; removing an
// absent id is a no-op.
func (s *MessageStore) Remove(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(messageID); idx >= 0 {
		s.seq = append(s.seq[:idx], s.seq[idx+1:]...)
	}
}

// Messages returns a copy of the current ordered sequence.
func (s *MessageStore) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.seq...)
}

// indexOf matches either id space. Callers must hold the lock.
func (s *MessageStore) indexOf(id string) int {
	for i, m := range s.seq {
		if m.ID == id || (m.LocalID != "" && m.LocalID == id) {
			return i
		}
	}
	return -1
}
