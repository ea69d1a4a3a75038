package session

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
)

// fakePersistence implements Persistence with configurable responses and
// invocation counters.
type fakePersistence struct {
	mu sync.Mutex

	conversations []chat.Conversation
	fetchConvsErr error

	messages      []chat.Message
	fetchMsgsErr  error
	fetchMsgCalls int
	fetchMsgsHook func()

	created      []CreateMessageRequest
	createResult func(req CreateMessageRequest) chat.Message
	createErr    error

	readCalls []string
	readErr   error

	deleted   []string
	deleteErr error

	profiles     map[string]chat.Profile
	profileErr   error
	profileCalls map[string]int
	profileDelay time.Duration
	profileHook  func()
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		profiles:     make(map[string]chat.Profile),
		profileCalls: make(map[string]int),
	}
}

func (f *fakePersistence) FetchConversations(_ context.Context, _ string) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchConvsErr != nil {
		return nil, f.fetchConvsErr
	}
	return append([]chat.Conversation(nil), f.conversations...), nil
}

func (f *fakePersistence) FetchMessages(_ context.Context, _, _ string) ([]chat.Message, error) {
	f.mu.Lock()
	f.fetchMsgCalls++
	hook := f.fetchMsgsHook
	err := f.fetchMsgsErr
	out := append([]chat.Message(nil), f.messages...)
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakePersistence) CreateMessage(_ context.Context, req CreateMessageRequest) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return chat.Message{}, f.createErr
	}
	f.created = append(f.created, req)
	if f.createResult != nil {
		return f.createResult(req), nil
	}
	return chat.Message{
		ID:              "srv-1",
		ConversationKey: req.ConversationKey,
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		Body:            req.Body,
		Attachments:     req.AttachmentURLs,
		CreatedAt:       time.Now(),
		Delivery:        chat.DeliverySent,
	}, nil
}

func (f *fakePersistence) MarkConversationRead(_ context.Context, conversationKey, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, conversationKey)
	return f.readErr
}

func (f *fakePersistence) DeleteMessage(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePersistence) FetchUserProfile(_ context.Context, userID string) (chat.Profile, error) {
	f.mu.Lock()
	f.profileCalls[userID]++
	profile, ok := f.profiles[userID]
	err := f.profileErr
	delay := f.profileDelay
	hook := f.profileHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return chat.Profile{}, err
	}
	if !ok {
		return chat.Profile{ID: userID}, nil
	}
	return profile, nil
}

func (f *fakePersistence) profileCallCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls[userID]
}

func (f *fakePersistence) createdRequests() []CreateMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreateMessageRequest(nil), f.created...)
}

// fakeUploader implements Uploader.
type fakeUploader struct {
	urls  []string
	err   error
	calls int
}

func (f *fakeUploader) UploadImages(_ context.Context, files []chat.ImageFile) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.urls != nil {
		return f.urls, nil
	}
	out := make([]string, 0, len(files))
	for _, file := range files {
		out = append(out, "https://cdn.test/"+file.Name)
	}
	return out, nil
}

// fakeChannel implements EventChannel and TypingPublisher, recording emissions.
type fakeChannel struct {
	mu         sync.Mutex
	sent       []chat.Message
	typing     []TypingEvent
	deleted    []MessageDeletedEvent
	publishErr error
}

func (f *fakeChannel) PublishMessageSent(_ context.Context, m chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeChannel) PublishTyping(_ context.Context, ev TypingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.typing = append(f.typing, ev)
	return nil
}

func (f *fakeChannel) PublishMessageDeleted(_ context.Context, conversationKey, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.deleted = append(f.deleted, MessageDeletedEvent{ConversationKey: conversationKey, MessageID: messageID})
	return nil
}

func (f *fakeChannel) typingEvents() []TypingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TypingEvent(nil), f.typing...)
}

func (f *fakeChannel) sentMessages() []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.sent...)
}
