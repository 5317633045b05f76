package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/classvoice/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default values", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.SamplingInterval(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.SamplingWarmup(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.DefaultLanguage, convey.ShouldEqual, "en-US")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then a non-positive timeout disables the bound", func() {
			cfg.DetectTimeoutMS = 0
			cfg.AcquireTimeoutMS = -5
			convey.So(cfg.DetectTimeout(), convey.ShouldEqual, time.Duration(0))
			convey.So(cfg.AcquireTimeout(), convey.ShouldEqual, time.Duration(0))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one invalid field", t, func() {
		cases := map[string]func(*config.Config){
			"addr must not be empty":                func(c *config.Config) { c.Addr = "" },
			"db_path must not be empty":             func(c *config.Config) { c.DBPath = "" },
			"sampling_interval_ms must be positive": func(c *config.Config) { c.SamplingIntervalMS = 0 },
			"event_queue_size must be positive":     func(c *config.Config) { c.EventQueueSize = 0 },
			"log_format must be text or json":       func(c *config.Config) { c.LogFormat = "xml" },
		}

		for want, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, want)
		}
	})
}
