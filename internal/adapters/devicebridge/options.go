package devicebridge

import (
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// Option configures a Peer.
type Option func(*Peer)

// WithRequestTimeout bounds each request to the client.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Peer) {
		if d > 0 {
			p.requestTimeout = d
		}
	}
}

// WithIDGenerator replaces the request and stream ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Peer) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Peer) {
		if l != nil {
			p.log = l
		}
	}
}
