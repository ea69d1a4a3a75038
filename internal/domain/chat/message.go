package chat

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryState tracks a message through pending -> sent -> read.
type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryRead    DeliveryState = "read"
)

// Message is a single chat message. Two id spaces exist: LocalID is assigned
// at optimistic insert and retained after reconciliation so late duplicate
// deliveries can still be matched; ID carries the server-assigned permanent id
// once the message round-trips.
type Message struct {
	ID              string
	LocalID         string
	ConversationKey string
	SenderID        string
	RecipientID     string
	Body            string
	Attachments     []string
	CreatedAt       time.Time
	Delivery        DeliveryState
}

// IsRead reports whether the peer has read the message.
func (m Message) IsRead() bool { return m.Delivery == DeliveryRead }

// Preview returns the conversation-list snippet for the message.
func (m Message) Preview() string {
	if body := strings.TrimSpace(m.Body); body != "" {
		return body
	}
	if len(m.Attachments) > 0 {
		return "[photo]"
	}
	return ""
}

// NewLocalID generates a temporary message id for optimistic entries.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("tmp-%d-%s", now.UnixNano(), uuid.NewString()[:8])
}

// ImageFile is a local image selected for upload.
type ImageFile struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Draft is a message the user is about to send.
type Draft struct {
	Body   string
	Images []ImageFile
}

// Validate rejects drafts with neither text nor images.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Body) == "" && len(d.Images) == 0 {
		return ErrEmptyDraft
	}
	return nil
}
