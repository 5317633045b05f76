// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so env vars map onto them without nesting.
// - Durations are expressed in milliseconds and exposed through helpers.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. ":memory:" keeps everything in process.
	DBPath string `koanf:"db_path"`

	// DefaultLanguage is used when a student connects without a language code.
	DefaultLanguage string `koanf:"default_language"`

	// Expression sampling cadence and bounds.
	SamplingIntervalMS int `koanf:"sampling_interval_ms"`
	SamplingWarmupMS   int `koanf:"sampling_warmup_ms"`
	AcquireTimeoutMS   int `koanf:"acquire_timeout_ms"`
	DetectTimeoutMS    int `koanf:"detect_timeout_ms"`

	// InferenceURL is the facial-expression inference service base URL.
	InferenceURL string `koanf:"inference_url"`

	// Transcription collaborator.
	TranscriptionURL       string `koanf:"transcription_url"`
	TranscriptionAPIKey    string `koanf:"transcription_api_key"`
	TranscriptionTimeoutMS int    `koanf:"transcription_timeout_ms"`

	// Text-AI collaborator (Anthropic).
	AIAPIKey    string `koanf:"ai_api_key"`
	AIModel     string `koanf:"ai_model"`
	AIMaxTokens int    `koanf:"ai_max_tokens"`
	AITimeoutMS int    `koanf:"ai_timeout_ms"`

	// EventQueueSize bounds each recorder's persistence queue.
	EventQueueSize int `koanf:"event_queue_size"`
	// FlushTimeoutMS bounds how long a closing recorder drains its queue.
	FlushTimeoutMS int `koanf:"flush_timeout_ms"`

	// Realtime publication. Empty RedisAddr disables it.
	RedisAddr          string `koanf:"redis_addr"`
	RedisChannelPrefix string `koanf:"redis_channel_prefix"`

	// Concerning-emotion alerts. Empty SlackWebhookURL disables them.
	SlackWebhookURL string `koanf:"slack_webhook_url"`
	AlertCooldownMS int    `koanf:"alert_cooldown_ms"`

	// Stale session sweep. Empty schedule disables the sweeper.
	SessionSweepSchedule string `koanf:"session_sweep_schedule"`
	StaleSessionAfterMS  int    `koanf:"stale_session_after_ms"`

	// SymbolsPath optionally replaces the embedded symbol card catalog.
	SymbolsPath string `koanf:"symbols_path"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBPath:                 "classvoice.db",
		DefaultLanguage:        "en-US",
		SamplingIntervalMS:     2000,
		SamplingWarmupMS:       500,
		AcquireTimeoutMS:       10_000,
		DetectTimeoutMS:        1500,
		InferenceURL:           "http://localhost:8501",
		TranscriptionURL:       "http://localhost:8502/transcribe-audio",
		TranscriptionTimeoutMS: 30_000,
		AIModel:                "claude-sonnet-4-20250514",
		AIMaxTokens:            1024,
		AITimeoutMS:            30_000,
		EventQueueSize:         64,
		FlushTimeoutMS:         3000,
		RedisChannelPrefix:     "classvoice",
		AlertCooldownMS:        60_000,
		SessionSweepSchedule:   "@every 10m",
		StaleSessionAfterMS:    4 * 60 * 60 * 1000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.SamplingIntervalMS <= 0:
		return fmt.Errorf("%w: sampling_interval_ms must be positive", ErrInvalidConfig)
	case c.SamplingWarmupMS < 0:
		return fmt.Errorf("%w: sampling_warmup_ms must not be negative", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: event_queue_size must be positive", ErrInvalidConfig)
	case c.AIMaxTokens <= 0:
		return fmt.Errorf("%w: ai_max_tokens must be positive", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// SamplingInterval returns the sampling cadence.
func (c *Config) SamplingInterval() time.Duration { return ms(c.SamplingIntervalMS) }

// SamplingWarmup returns the delay before the first sampling tick.
func (c *Config) SamplingWarmup() time.Duration { return ms(c.SamplingWarmupMS) }

// AcquireTimeout bounds camera and microphone acquisition.
func (c *Config) AcquireTimeout() time.Duration { return ms(c.AcquireTimeoutMS) }

// DetectTimeout bounds one inference call.
func (c *Config) DetectTimeout() time.Duration { return ms(c.DetectTimeoutMS) }

// TranscriptionTimeout bounds one transcription round trip.
func (c *Config) TranscriptionTimeout() time.Duration { return ms(c.TranscriptionTimeoutMS) }

// AITimeout bounds one text-AI round trip.
func (c *Config) AITimeout() time.Duration { return ms(c.AITimeoutMS) }

// FlushTimeout bounds the recorder drain on close.
func (c *Config) FlushTimeout() time.Duration { return ms(c.FlushTimeoutMS) }

// AlertCooldown is the minimum gap between alerts for one student.
func (c *Config) AlertCooldown() time.Duration { return ms(c.AlertCooldownMS) }

// StaleSessionAfter is the age after which an open session is swept.
func (c *Config) StaleSessionAfter() time.Duration { return ms(c.StaleSessionAfterMS) }

// zero or negative values disable the bound
func ms(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}
