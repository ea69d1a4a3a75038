package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDraft is returned when a draft carries neither text nor images.
	ErrEmptyDraft = errors.New("chat: message needs text or at least one image")
	// ErrMalformedKey is returned when a conversation key does not split into two participants.
	ErrMalformedKey = errors.New("chat: malformed conversation key")
	// ErrMalformedEvent marks an inbound event that is missing required fields.
	ErrMalformedEvent = errors.New("chat: malformed event payload")
)

// UploadError wraps a failed attachment upload. Any single failed image fails
// the whole send attempt.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("chat: image upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed call against the persistence backend.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chat: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
