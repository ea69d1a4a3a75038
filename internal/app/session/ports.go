package session

import (
	"context"

	"marketchat/internal/domain/chat"
)

// CreateMessageRequest is the payload for the persistence create-message call.
// The server assigns the permanent id, timestamp and initial delivery state.
type CreateMessageRequest struct {
	SenderID        string
	RecipientID     string
	Body            string
	AttachmentURLs  []string
	ConversationKey string
	RelatedItemID   string
}

// Persistence is the REST-like backend the session consumes. It is the source
// of truth; the event channel only accelerates propagation.
type Persistence interface {
	FetchConversations(ctx context.Context, currentUserID string) ([]chat.Conversation, error)
	FetchMessages(ctx context.Context, currentUserID, otherUserID string) ([]chat.Message, error)
	CreateMessage(ctx context.Context, req CreateMessageRequest) (chat.Message, error)
	MarkConversationRead(ctx context.Context, conversationKey, userID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	FetchUserProfile(ctx context.Context, userID string) (chat.Profile, error)
}

// ProfileFetcher is the slice of Persistence the conversation store needs.
type ProfileFetcher interface {
	FetchUserProfile(ctx context.Context, userID string) (chat.Profile, error)
}

// HistoryFetcher is the slice of Persistence the message store needs.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, currentUserID, otherUserID string) ([]chat.Message, error)
}

// Uploader stores local images and returns their public URLs in order.
// A partial failure is treated as total failure for the send attempt.
type Uploader interface {
	UploadImages(ctx context.Context, files []chat.ImageFile) ([]string, error)
}

// EventChannel is the outbound side of the event stream. Emissions are
// fire-and-forget relative to sends: persistence already happened and a
// publish failure never rolls a message back.
type EventChannel interface {
	PublishMessageSent(ctx context.Context, m chat.Message) error
	PublishTyping(ctx context.Context, ev TypingEvent) error
	PublishMessageDeleted(ctx context.Context, conversationKey, messageID string) error
}

// TypingPublisher is the slice of EventChannel the typing signal needs.
type TypingPublisher interface {
	PublishTyping(ctx context.Context, ev TypingEvent) error
}
