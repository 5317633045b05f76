package service

import (
	"time"

	"github.com/okian/classvoice/internal/audio"
	"github.com/okian/classvoice/internal/config"
	"github.com/okian/classvoice/internal/sampler"
	"github.com/okian/classvoice/internal/symbols"
	"github.com/okian/classvoice/pkg/logger"
)

const (
	defaultLanguage     = "en-US"
	defaultHelloTimeout = 10 * time.Second
	defaultQueueSize    = 64
	defaultFlushTimeout = 3 * time.Second
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDetector enables expression sampling.
func WithDetector(d sampler.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

// WithTranscriber enables speech capture.
func WithTranscriber(t audio.Transcriber) Option {
	return func(s *Service) {
		s.transcriber = t
	}
}

// WithTextProcessor enables simplify, translate and summarize.
func WithTextProcessor(p TextProcessor) Option {
	return func(s *Service) {
		s.text = p
	}
}

// WithSymbols replaces the embedded symbol card catalog.
func WithSymbols(c *symbols.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithDefaultLanguage sets the language used when a client sends none.
func WithDefaultLanguage(lang string) Option {
	return func(s *Service) {
		if lang != "" {
			s.defaultLanguage = lang
		}
	}
}

// WithHelloTimeout bounds how long Mount waits for the client's hello.
func WithHelloTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.helloTimeout = d
		}
	}
}

// WithSampling sets the sampler cadence and warm-up delay.
func WithSampling(interval, warmup time.Duration) Option {
	return func(s *Service) {
		s.samplingInterval = interval
		s.samplingWarmup = warmup
	}
}

// WithQueueSize bounds each recorder's write queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithFlushTimeout bounds how long an unmounting recorder drains.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// WithConfig applies the tuning keys of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		if cfg.DefaultLanguage != "" {
			s.defaultLanguage = cfg.DefaultLanguage
		}
		s.samplingInterval = cfg.SamplingInterval()
		s.samplingWarmup = cfg.SamplingWarmup()
		s.acquireTimeout = cfg.AcquireTimeout()
		s.detectTimeout = cfg.DetectTimeout()
		s.transcribeTimeout = cfg.TranscriptionTimeout()
		if cfg.EventQueueSize > 0 {
			s.queueSize = cfg.EventQueueSize
		}
		if d := cfg.FlushTimeout(); d > 0 {
			s.flushTimeout = d
		}
	}
}

// WithIDGenerator replaces the interface ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
