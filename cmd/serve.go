package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/okian/classvoice/internal/adapters/http/api"
	"github.com/okian/classvoice/internal/adapters/http/swagger"
	"github.com/okian/classvoice/internal/adapters/inference"
	"github.com/okian/classvoice/internal/adapters/notify"
	"github.com/okian/classvoice/internal/adapters/repository"
	"github.com/okian/classvoice/internal/adapters/textai"
	"github.com/okian/classvoice/internal/adapters/transcription"
	service "github.com/okian/classvoice/internal/app"
	"github.com/okian/classvoice/internal/config"
	"github.com/okian/classvoice/internal/symbols"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

// HTTP server timeout constants. There is no write timeout because student
// websockets stay open for the whole class.
const (
	readTimeout           = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func runServeCmd(_ *cobra.Command, _ []string) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return err
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Error(err))
		return err
	}
	defer app.close(context.Background())

	if err := app.svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return err
	}
	if app.sweeper != nil {
		app.sweeper.Start()
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.mux(ctx),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	app.svc.Stop(shutdownCtx)

	log.Info(ctx, "server stopped")
	return nil
}

// components is everything serve owns and must release.
type components struct {
	store   *repository.SQLiteStore
	redis   *redis.Client
	sweeper *repository.Sweeper
	svc     *service.Service
	log     logger.Logger
}

// build wires the collaborators named by cfg. Collaborators with an empty
// address or key are left out and their features report disabled.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	store, err := repository.Open(cfg.DBPath, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c := &components{store: store, log: log}

	var sinks []notify.Sink
	if cfg.RedisAddr != "" {
		client, err := notify.NewRedisClient(ctx, cfg.RedisAddr, "", 0)
		if err != nil {
			// realtime publication is optional
			log.Warn(ctx, "redis unavailable; realtime events disabled", logger.String("addr", cfg.RedisAddr), logger.Error(err))
		} else {
			c.redis = client
			sinks = append(sinks, notify.NewRedisSink(client, cfg.RedisChannelPrefix))
		}
	}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhookURL, cfg.AlertCooldown()))
	}
	fanout := notify.NewFanout(store, sinks, notify.WithLogger(log.Named("notify")))

	catalog := symbols.Default()
	if cfg.SymbolsPath != "" {
		if catalog, err = symbols.Load(cfg.SymbolsPath); err != nil {
			c.close(ctx)
			return nil, fmt.Errorf("load symbols: %w", err)
		}
	}

	opts := []service.Option{
		service.WithConfig(cfg),
		service.WithSymbols(catalog),
		service.WithLogger(log.Named("service")),
	}
	if cfg.InferenceURL != "" {
		opts = append(opts, service.WithDetector(inference.New(cfg.InferenceURL)))
	}
	if cfg.TranscriptionURL != "" {
		opts = append(opts, service.WithTranscriber(transcription.New(cfg.TranscriptionURL,
			transcription.WithAPIKey(cfg.TranscriptionAPIKey),
			transcription.WithTimeout(cfg.TranscriptionTimeout()),
		)))
	}
	if cfg.AIAPIKey != "" {
		opts = append(opts, service.WithTextProcessor(textai.New(cfg.AIAPIKey,
			textai.WithModel(cfg.AIModel),
			textai.WithMaxTokens(int64(cfg.AIMaxTokens)),
			textai.WithTimeout(cfg.AITimeout()),
			textai.WithLogger(log.Named("textai")),
		)))
	}
	c.svc = service.New(fanout, opts...)

	if cfg.SessionSweepSchedule != "" {
		c.sweeper, err = repository.NewSweeper(store, cfg.SessionSweepSchedule, cfg.StaleSessionAfter(),
			repository.WithSweeperLogger(log.Named("sweeper")),
			repository.WithLiveSessions(c.svc.OpenSessionIDs))
		if err != nil {
			c.close(ctx)
			return nil, fmt.Errorf("schedule sweeper: %w", err)
		}
	}

	log.Info(ctx, "service wired",
		logger.Bool("detector", cfg.InferenceURL != ""),
		logger.Bool("transcriber", cfg.TranscriptionURL != ""),
		logger.Bool("textAI", cfg.AIAPIKey != ""),
		logger.Any("sinks", fanout.Sinks()),
	)
	return c, nil
}

// mux registers the API reference and the business routes.
func (c *components) mux(ctx context.Context) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(c.svc, api.WithPinger(c.store), api.WithHistory(c.store)).Register(ctx, mux)
	return mux
}

func (c *components) close(ctx context.Context) {
	if c.sweeper != nil {
		if err := c.sweeper.Stop(ctx); err != nil {
			c.log.Warn(ctx, "sweeper stop failed", logger.Error(err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warn(ctx, "redis close failed", logger.Error(err))
		}
	}
	if err := c.store.Close(); err != nil {
		c.log.Warn(ctx, "store close failed", logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
