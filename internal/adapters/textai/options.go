package textai

import (
	"errors"
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// ErrNoText is returned when the model answers without a text block.
var ErrNoText = errors.New("no text content in response")

type settings struct {
	model      string
	maxTokens  int64
	timeout    time.Duration
	baseURL    string
	maxRetries int
	logger     logger.Logger
}

// Option configures a Processor.
type Option func(*settings)

// WithModel selects the model.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBaseURL points the client at another API host.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithMaxRetries sets the SDK retry count. Negative keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		s.maxRetries = n
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}
