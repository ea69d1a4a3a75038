package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"marketchat/internal/domain/chat"
)

// ConversationStore owns the conversation list for one signed-in user: unread
// counters, last-message previews and the selected-conversation gate. All
// mutation goes through its methods; only Load touches the network.
type ConversationStore struct {
	mu            sync.RWMutex
	currentUserID string
	items         map[string]*chat.Conversation
	activeKey     string

	profiles    map[string]chat.Profile
	lookups     singleflight.Group
	persistence ProfileFetcher
	fetchConvs  func(ctx context.Context, currentUserID string) ([]chat.Conversation, error)
	logger      *slog.Logger
}

// NewConversationStore builds an empty store for the given user.
func NewConversationStore(currentUserID string, persistence Persistence, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		currentUserID: currentUserID,
		items:         make(map[string]*chat.Conversation),
		profiles:      make(map[string]chat.Profile),
		persistence:   persistence,
		fetchConvs:    persistence.FetchConversations,
		logger:        logger,
	}
}

// Load fetches the conversation list and resolves counterpart profiles that
// are not already cached. Lookups for the same user id coalesce into a single
// in-flight request, so two conversations sharing a counterpart trigger one
// fetch per load pass.
func (s *ConversationStore) Load(ctx context.Context) ([]chat.Conversation, error) {
	conversations, err := s.fetchConvs(ctx, s.currentUserID)
	if err != nil {
		return nil, &chat.PersistenceError{Op: "fetch conversations", Err: err}
	}

	missing := s.missingProfileIDs(conversations)
	if len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range missing {
			g.Go(func() error {
				s.resolveProfile(gctx, id)
				return nil
			})
		}
		_ = g.Wait()
	}

	s.mu.Lock()
	s.items = make(map[string]*chat.Conversation, len(conversations))
	for i := range conversations {
		conv := conversations[i]
		if profile, ok := s.profiles[conv.OtherUser.ID]; ok {
			conv.OtherUser = profile
		}
		s.items[conv.Key] = &conv
	}
	s.mu.Unlock()

	return s.List(), nil
}

// missingProfileIDs returns counterpart ids without a cached profile, deduplicated.
func (s *ConversationStore) missingProfileIDs(conversations []chat.Conversation) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(conversations))
	var out []string
	for _, conv := range conversations {
		id := conv.OtherUser.ID
		if id == "" {
			continue
		}
		if _, ok := s.profiles[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// resolveProfile fetches and caches one counterpart profile. Concurrent calls
// for the same id share a single request. A failed lookup is logged and the
// profile stays unresolved; the conversation still renders with the bare id.
func (s *ConversationStore) resolveProfile(ctx context.Context, userID string) {
	_, err, _ := s.lookups.Do(userID, func() (any, error) {
		profile, err := s.persistence.FetchUserProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.profiles[userID] = profile
		s.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		s.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
	}
}

// UpsertFromInbound folds an inbound message into the list: the last-message
// snapshot always moves forward, the unread counter grows only when the
// message is from the counterpart and its conversation is not the open one.
// Unknown conversations get a minimal synthesized entry.
func (s *ConversationStore) UpsertFromInbound(m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.items[m.ConversationKey]
	if !ok {
		synthesized := chat.NewConversation(m.SenderID, m.RecipientID)
		synthesized.Key = m.ConversationKey
		other, err := chat.OtherParticipant(m.ConversationKey, s.currentUserID)
		if err == nil {
			synthesized.OtherUser = chat.Profile{ID: other}
			if profile, cached := s.profiles[other]; cached {
				synthesized.OtherUser = profile
			}
		}
		conv = &synthesized
		s.items[m.ConversationKey] = conv
	}
	conv.Pending = false
	conv.Last = &chat.LastMessage{
		Preview:  m.Preview(),
		SenderID: m.SenderID,
		SentAt:   m.CreatedAt,
	}
	if m.SenderID != s.currentUserID && m.ConversationKey != s.activeKey {
		conv.UnreadCount++
	}
}

// RefreshPreview updates the last-message snapshot without touching the
// unread counter. Used after an own send and for inbound messages landing in
// the open conversation, where the user is already reading them.
func (s *ConversationStore) RefreshPreview(m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.items[m.ConversationKey]
	if !ok {
		return
	}
	conv.Pending = false
	conv.Last = &chat.LastMessage{
		Preview:  m.Preview(),
		SenderID: m.SenderID,
		SentAt:   m.CreatedAt,
	}
}

// MarkRead zeroes the unread counter locally. The corresponding persistence
// call is the caller's responsibility, which keeps this store testable
// without any network.
func (s *ConversationStore) MarkRead(conversationKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.items[conversationKey]; ok {
		conv.UnreadCount = 0
	}
}

// Select marks a conversation as the open one. That gate suppresses unread
// increments for inbound messages belonging to it.
func (s *ConversationStore) Select(conversationKey string) {
	s.mu.Lock()
	s.activeKey = conversationKey
	s.mu.Unlock()
}

// Selected returns the key of the open conversation, or "".
func (s *ConversationStore) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKey
}

// StartDraft synthesizes a pending conversation with a user the current user
// has no history with. It carries no persisted state until the first message
// round-trips.
func (s *ConversationStore) StartDraft(ctx context.Context, otherUserID, relatedItemID string) chat.Conversation {
	key := chat.CanonicalKey(s.currentUserID, otherUserID)

	s.mu.Lock()
	if existing, ok := s.items[key]; ok {
		conv := *existing
		s.mu.Unlock()
		return conv
	}
	conv := chat.NewConversation(s.currentUserID, otherUserID)
	conv.RelatedItemID = relatedItemID
	conv.Pending = true
	conv.OtherUser = chat.Profile{ID: otherUserID}
	if profile, ok := s.profiles[otherUserID]; ok {
		conv.OtherUser = profile
	}
	s.items[key] = &conv
	s.mu.Unlock()

	if conv.OtherUser.Name == "" {
		s.resolveProfile(ctx, otherUserID)
		s.mu.Lock()
		if profile, ok := s.profiles[otherUserID]; ok {
			conv.OtherUser = profile
			// A Load may have replaced the items map while the lock was
			// released; the pending draft has no server-side entry, so it
			// can be gone by now.
			if entry, present := s.items[key]; present {
				entry.OtherUser = profile
			}
		}
		s.mu.Unlock()
	}
	return conv
}

// Get returns a conversation by key.
func (s *ConversationStore) Get(conversationKey string) (chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[conversationKey]
	if !ok {
		return chat.Conversation{}, false
	}
	return *conv, true
}

// List returns the conversations ordered by most recent activity.
func (s *ConversationStore) List() []chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Conversation, 0, len(s.items))
	for _, conv := range s.items {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out
}
