package chat

import (
	"fmt"
	"strings"
)

// keySeparator joins the two participant ids inside a conversation key.
// User ids are opaque tokens that never contain a colon.
const keySeparator = ":"

// CanonicalKey derives the conversation key shared by two participants.
// The key is order-independent: CanonicalKey(a, b) == CanonicalKey(b, a).
func CanonicalKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + keySeparator + userB
}

// OtherParticipant splits a conversation key and returns the participant that
// is not currentUserID. It returns ErrMalformedKey when the key does not split
// into exactly two components or when neither component is currentUserID.
func OtherParticipant(key, currentUserID string) (string, error) {
	parts := strings.Split(key, keySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	switch currentUserID {
	case parts[0]:
		return parts[1], nil
	case parts[1]:
		return parts[0], nil
	}
	return "", fmt.Errorf("%w: %q does not include user %q", ErrMalformedKey, key, currentUserID)
}
