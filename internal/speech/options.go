package speech

import (
	"github.com/okian/classvoice/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithLanguage sets the language used to pick the default voice.
func WithLanguage(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithIDGenerator replaces the utterance ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
