package dto

import "time"

// Conversation describes one thread in the conversation list.
type Conversation struct {
	Key           string       `json:"key"`
	Participants  []string     `json:"participants"`
	RelatedItemID string       `json:"related_item_id,omitempty"`
	UnreadCount   int          `json:"unread_count"`
	LastMessage   *LastMessage `json:"last_message,omitempty"`
}

// LastMessage is the preview snapshot shown in the list.
type LastMessage struct {
	Preview  string    `json:"preview"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// ConversationList is the conversations collection payload.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	SenderID        string    `json:"sender_id"`
	RecipientID     string    `json:"recipient_id"`
	Body            string    `json:"body,omitempty"`
	Attachments     []string  `json:"attachments,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Read            bool      `json:"read"`
}

// ChatMessageList is the message history payload.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

// CreateMessage is the create-message request body. The server assigns the
// permanent id, timestamp and initial delivery state.
type CreateMessage struct {
	SenderID        string   `json:"sender_id"`
	RecipientID     string   `json:"recipient_id"`
	Body            string   `json:"body,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`
	ConversationKey string   `json:"conversation_key,omitempty"`
	RelatedItemID   string   `json:"related_item_id,omitempty"`
}

// MarkRead is the mark-conversation-read request body.
type MarkRead struct {
	UserID string `json:"user_id"`
}

// Profile is a public user profile.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
