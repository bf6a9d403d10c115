package session

import "errors"

// Sentinel errors for store operations, checked with errors.Is.
var (
	// ErrSessionNotFound indicates the session does not exist or is
	// owned by a different browser id.
	ErrSessionNotFound = errors.New("session not found")
)
