package device

import "errors"

// Errors returned by port implementations.
var (
	ErrPermissionDenied = errors.New("device: permission denied")
	ErrNotFound         = errors.New("device: not found")
	ErrUnavailable      = errors.New("device: unavailable")
	ErrClosed           = errors.New("device: closed")
)
