package session

// TypingEvent signals that a participant started or stopped typing in a
// conversation. It is ephemeral and never persisted.
type TypingEvent struct {
	ConversationKey string
	UserID          string
	IsTyping        bool
}

// MessageDeletedEvent propagates a terminal message removal to the peer.
type MessageDeletedEvent struct {
	ConversationKey string
	MessageID       string
}

// ReadReceiptEvent reports that a participant read a conversation up to now.
type ReadReceiptEvent struct {
	ConversationKey string
	ReadByUserID    string
}
