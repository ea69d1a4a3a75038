package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke the stopped-typing
// event fires.
const DefaultTypingIdle = time.Second

// TypingSignal debounces input activity into typing events: one typing=true
// at the start of a burst, one typing=false after the idle window elapses
// with no further activity. Each activity call restarts the decay timer, so
// no false is emitted mid-burst.
type TypingSignal struct {
	channel TypingPublisher
	userID  string
	idle    time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	key    string
	active bool
	timer  *time.Timer
	gen    uint64
}

// NewTypingSignal builds a signal emitting on behalf of userID. A non-positive
// idle falls back to DefaultTypingIdle.
func NewTypingSignal(channel TypingPublisher, userID string, idle time.Duration, logger *slog.Logger) *TypingSignal {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TypingSignal{channel: channel, userID: userID, idle: idle, logger: logger}
}

// NotifyActivity records a keystroke in the given conversation. The first
// call of a burst emits typing=true immediately; every call pushes the
// typing=false emission out by the idle window. Switching conversations
// drops the old timer without emitting false for the stale key.
func (t *TypingSignal) NotifyActivity(conversationKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.key != conversationKey {
		t.cancelLocked()
		t.key = conversationKey
	}
	if !t.active {
		t.active = true
		t.emit(conversationKey, true)
	}

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() { t.decay(conversationKey, gen) })
}

// Stop tears the signal down, cancelling any pending decay without emitting.
func (t *TypingSignal) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.key = ""
}

// decay fires when the idle window elapses. The generation guard drops timer
// callbacks that lost a race with a later keystroke or a teardown.
func (t *TypingSignal) decay(conversationKey string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.key != conversationKey || !t.active {
		return
	}
	t.active = false
	t.emit(conversationKey, false)
}

// cancelLocked stops the pending timer and invalidates outstanding callbacks.
func (t *TypingSignal) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.active = false
}

// emit publishes one event, fire and forget.
func (t *TypingSignal) emit(conversationKey string, isTyping bool) {
	if t.channel == nil {
		return
	}
	ev := TypingEvent{ConversationKey: conversationKey, UserID: t.userID, IsTyping: isTyping}
	if err := t.channel.PublishTyping(context.Background(), ev); err != nil {
		t.logger.Debug("typing event publish failed", "conversation_key", conversationKey, "error", err)
	}
}
