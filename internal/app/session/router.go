package session

import (
	"context"
	"log/slog"
	"sync"

	"marketchat/internal/domain/chat"
)

// seenMessageCap bounds the router's delivery dedup window. The stream is
// at-least-once and every send is published twice (by the sending client and
// by the server fan-out), so duplicates are the normal case, not an edge case.
const seenMessageCap = 512

// Router consumes the four inbound event kinds from the event stream and
// applies them to the stores with idempotency guarantees. Malformed events
// are dropped and logged; one bad payload must never take down the live
// subscription.
type Router struct {
	CurrentUserID string
	Conversations *ConversationStore
	Messages      *MessageStore
	Persistence   Persistence
	Logger        *slog.Logger

	mu         sync.Mutex
	typingKey  string
	peerTyping bool
	seen       map[string]struct{}
	seenOrder  []string
}

// HandleMessageCreated routes a freshly persisted message.
//
// Own-echo suppression: events authored by the current user are ignored
// outright, the optimistic send path already put the message into the store.
// Relying on id-based dedup alone would be fragile here, since the optimistic
// and server ids may never appear in the same collection at comparison time.
func (r *Router) HandleMessageCreated(ctx context.Context, m chat.Message) {
	if m.ID == "" || m.ConversationKey == "" || m.SenderID == "" {
		r.log().Warn("dropping malformed message event",
			"message_id", m.ID, "conversation_key", m.ConversationKey, "error", chat.ErrMalformedEvent)
		return
	}
	if m.SenderID == r.CurrentUserID {
		return
	}
	// Check, process, mark: the ApplyInbound id check only protects the open
	// conversation; unread counters need the same guarantee.
	if r.alreadySeen(m.ID) {
		return
	}

	if m.ConversationKey == r.Conversations.Selected() {
		r.Messages.ApplyInbound(m)
		// Keep the list preview fresh; the unread counter stays untouched
		// for a message the user is looking at.
		r.Conversations.RefreshPreview(m)
		r.markRead(ctx, m.ConversationKey)
	} else {
		r.Conversations.UpsertFromInbound(m)
	}
	r.markSeen(m.ID)
}

// alreadySeen reports whether a message id was already routed.
func (r *Router) alreadySeen(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[messageID]
	return ok
}

// markSeen records a routed message id, evicting the oldest beyond the cap.
func (r *Router) markSeen(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]struct{}, seenMessageCap)
	}
	if _, ok := r.seen[messageID]; ok {
		return
	}
	r.seen[messageID] = struct{}{}
	r.seenOrder = append(r.seenOrder, messageID)
	if len(r.seenOrder) > seenMessageCap {
		delete(r.seen, r.seenOrder[0])
		r.seenOrder = r.seenOrder[1:]
	}
}

// HandleTypingChanged tracks the counterpart's typing flag for the open
// conversation. The flag is ephemeral: it decays when a false event arrives,
// including the sender's timeout-driven false.
func (r *Router) HandleTypingChanged(ev TypingEvent) {
	if ev.ConversationKey == "" || ev.UserID == "" {
		r.log().Warn("dropping malformed typing event", "error", chat.ErrMalformedEvent)
		return
	}
	if ev.UserID == r.CurrentUserID {
		return
	}
	if ev.ConversationKey != r.Conversations.Selected() {
		return
	}
	r.mu.Lock()
	r.typingKey = ev.ConversationKey
	r.peerTyping = ev.IsTyping
	r.mu.Unlock()
}

// HandleMessageDeleted removes a message deleted by its sender on any device.
// Removal is idempotent when the message is already absent.
func (r *Router) HandleMessageDeleted(ev MessageDeletedEvent) {
	if ev.MessageID == "" {
		r.log().Warn("dropping malformed delete event", "error", chat.ErrMalformedEvent)
		return
	}
	r.Messages.Remove(ev.MessageID)
}

// HandleReadReceipt transitions the current user's sent messages to read and
// clears the unread counter of the referenced conversation. The message store
// holds one conversation at a time, so it only moves when the receipt
// references that conversation; a receipt for a background thread must not
// touch the open thread's delivery states.
func (r *Router) HandleReadReceipt(ev ReadReceiptEvent) {
	if ev.ConversationKey == "" || ev.ReadByUserID == "" {
		r.log().Warn("dropping malformed read receipt", "error", chat.ErrMalformedEvent)
		return
	}
	if ev.ConversationKey == r.Messages.Key() {
		r.Messages.MarkAllSentAsRead(ev.ReadByUserID)
	}
	r.Conversations.MarkRead(ev.ConversationKey)
}

// PeerTyping reports whether the counterpart of the given conversation is
// currently typing.
func (r *Router) PeerTyping(conversationKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerTyping && r.typingKey == conversationKey
}

// markRead clears the conversation locally and persists the transition.
func (r *Router) markRead(ctx context.Context, conversationKey string) {
	r.Conversations.MarkRead(conversationKey)
	if r.Persistence == nil {
		return
	}
	if err := r.Persistence.MarkConversationRead(ctx, conversationKey, r.CurrentUserID); err != nil {
		r.log().Warn("mark read failed", "conversation_key", conversationKey, "error", err)
	}
}

func (r *Router) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
