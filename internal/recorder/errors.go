package recorder

import "errors"

// Sentinel errors for the session lifecycle.
var (
	ErrNoSubject     = errors.New("no student identity")
	ErrSessionOpen   = errors.New("session already open")
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("write queue full")
)
