package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUpgrade      = errors.New("websocket upgrade failed")
	ErrUnhealthy    = errors.New("dependency unhealthy")
	ErrMissingParam = errors.New("missing query parameter")
)
