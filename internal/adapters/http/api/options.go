package api

import (
	"context"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*options)

type options struct {
	pinger         Pinger
	history        HistoryReader
	allowedOrigins []string
	peerOptions    []devicebridge.Option
}

// WithPinger adds a dependency check to /healthz.
func WithPinger(p Pinger) Option {
	return func(o *options) {
		o.pinger = p
	}
}

// WithHistory enables the /sessions and /messages read routes.
func WithHistory(h HistoryReader) Option {
	return func(o *options) {
		o.history = h
	}
}

// WithAllowedOrigins lists the browser origins accepted on /ws/student. "*"
// accepts any origin; none keeps the same-origin check.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		o.allowedOrigins = append(o.allowedOrigins, origins...)
	}
}

// WithPeerOptions passes options to every device bridge peer.
func WithPeerOptions(opts ...devicebridge.Option) Option {
	return func(o *options) {
		o.peerOptions = append(o.peerOptions, opts...)
	}
}
