package chat

import "time"

// Profile is the denormalized counterpart profile shown in the conversation list.
type Profile struct {
	ID        string
	Name      string
	AvatarURL string
}

// LastMessage is the snapshot used for list previews.
type LastMessage struct {
	Preview  string
	SenderID string
	SentAt   time.Time
}

// Conversation is one thread between the current user and a counterpart,
// optionally tied to a marketplace listing.
type Conversation struct {
	Key           string
	Participants  [2]string
	OtherUser     Profile
	RelatedItemID string
	UnreadCount   int
	Last          *LastMessage
	// Pending marks a thread synthesized client-side before the first
	// message has round-tripped; it has no persisted state yet.
	Pending bool
}

// NewConversation builds a thread between two users under the canonical key.
func NewConversation(userA, userB string) Conversation {
	if userB < userA {
		userA, userB = userB, userA
	}
	return Conversation{
		Key:          CanonicalKey(userA, userB),
		Participants: [2]string{userA, userB},
	}
}

// LastActivity returns the timestamp used for ordering the conversation list.
func (c Conversation) LastActivity() time.Time {
	if c.Last == nil {
		return time.Time{}
	}
	return c.Last.SentAt
}
