package inference

import (
	"errors"
	"net/http"
)

// Errors returned by the client.
var (
	ErrNotReady   = errors.New("expression model not ready")
	ErrEmptyFrame = errors.New("empty frame")
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}
