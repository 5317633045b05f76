// Package sampler owns camera acquisition and the periodic facial-expression
// sampling loop of one student interface.
package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const (
	defaultInterval       = 2 * time.Second
	defaultWarmup         = 500 * time.Millisecond
	defaultAcquireTimeout = 10 * time.Second
	defaultDetectTimeout  = 1500 * time.Millisecond
)

// Detector runs single-face expression inference.
type Detector interface {
	// Load prepares the model. A failure leaves the sampler degraded.
	Load(ctx context.Context) error
	// Detect returns nil scores when the frame holds no face.
	Detect(ctx context.Context, f device.Frame) (*emotion.Scores, error)
}

// Observer receives each classified sample on the sampler goroutine, in tick
// order. It must not call StopDetection.
type Observer func(c emotion.Classified, at time.Time)

// Sampler samples one camera at a fixed cadence.
type Sampler struct {
	camera      device.Camera
	detector    Detector
	constraints device.VideoConstraints

	interval       time.Duration
	warmup         time.Duration
	acquireTimeout time.Duration
	detectTimeout  time.Duration
	now            func() time.Time
	log            logger.Logger

	loadOnce sync.Once
	ready    chan struct{}
	degraded atomic.Bool

	// lifecycle serialises StartDetection and StopDetection.
	lifecycle sync.Mutex

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	stream     device.VideoStream
	current    emotion.Classified
	hasCurrent bool
	observers  map[uint64]Observer
	nextID     uint64
}

// New creates a sampler. Nothing is acquired until StartDetection.
func New(camera device.Camera, detector Detector, opts ...Option) *Sampler {
	s := &Sampler{
		camera:         camera,
		detector:       detector,
		constraints:    device.DefaultVideo,
		interval:       defaultInterval,
		warmup:         defaultWarmup,
		acquireTimeout: defaultAcquireTimeout,
		detectTimeout:  defaultDetectTimeout,
		now:            time.Now,
		log:            logger.Get().Named("sampler"),
		ready:          make(chan struct{}),
		observers:      make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preload starts loading the model in the background. Only the first call
// has an effect. Ready is closed once loading resolves either way.
func (s *Sampler) Preload(ctx context.Context) {
	s.loadOnce.Do(func() {
		go func() {
			defer close(s.ready)
			if err := s.detector.Load(ctx); err != nil {
				s.degraded.Store(true)
				s.log.Warn(ctx, "expression model failed to load, sampling degraded", logger.Error(err))
				return
			}
			s.log.Debug(ctx, "expression model loaded")
		}()
	})
}

// Ready is closed when model loading has resolved.
func (s *Sampler) Ready() <-chan struct{} { return s.ready }

// Degraded reports whether the model failed to load.
func (s *Sampler) Degraded() bool { return s.degraded.Load() }

// StartDetection acquires the camera and begins sampling. It is a no-op
// while already detecting.
func (s *Sampler) StartDetection(ctx context.Context) error {
	const op = "sampler.StartDetection"

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Active() {
		return nil
	}
	s.Preload(context.WithoutCancel(ctx))

	actx, cancelAcquire := bounded(ctx, s.acquireTimeout)
	stream, err := s.camera.OpenVideo(actx, s.constraints)
	cancelAcquire()
	if err != nil {
		if errors.Is(err, device.ErrPermissionDenied) || errors.Is(err, device.ErrNotFound) {
			return failure.Wrap(op, failure.ErrPermissionDenied, err)
		}
		return failure.Wrap(op, failure.ErrHardwareUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.stream = stream
	s.mu.Unlock()

	go s.run(loopCtx, stream, done)
	s.log.Info(ctx, "detection started", logger.Duration("interval", s.interval))
	return nil
}

// StopDetection cancels sampling, waits for the loop to exit, releases the
// camera and resets the emitted state. No observer runs after it returns.
// It is idempotent.
func (s *Sampler) StopDetection() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	cancel, done, stream := s.cancel, s.done, s.stream
	s.cancel, s.done, s.stream = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if err := stream.Close(); err != nil {
		s.log.Warn(context.Background(), "closing video stream", logger.Error(err))
	}

	s.mu.Lock()
	s.current = emotion.Classified{}
	s.hasCurrent = false
	s.mu.Unlock()
	s.log.Info(context.Background(), "detection stopped")
}

// Active reports whether the sampling loop is running.
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Current returns the most recent sample. ok is false before the first
// sample and after StopDetection.
func (s *Sampler) Current() (c emotion.Classified, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}

// Subscribe registers an observer and returns its cancel func.
func (s *Sampler) Subscribe(o Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Sampler) run(ctx context.Context, stream device.VideoStream, done chan struct{}) {
	defer close(done)

	warm := time.NewTimer(s.warmup)
	defer warm.Stop()
	select {
	case <-ctx.Done():
		return
	case <-warm.C:
	}

	select {
	case <-ctx.Done():
		return
	case <-s.ready:
	}

	s.tick(ctx, stream)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, stream)
		}
	}
}

// tick swallows capture and inference errors and skips its emission.
func (s *Sampler) tick(ctx context.Context, stream device.VideoStream) {
	dctx, cancel := bounded(ctx, s.detectTimeout)
	defer cancel()

	frame, err := stream.Frame(dctx)
	if err != nil {
		metrics.RecordSample("error")
		s.log.Debug(ctx, "frame capture failed", logger.Error(err))
		return
	}

	start := time.Now()
	scores, err := s.detector.Detect(dctx, frame)
	metrics.RecordDetectionLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordSample("error")
		s.log.Debug(ctx, "expression inference failed", logger.Error(err))
		return
	}

	c := emotion.NoFace
	if scores != nil {
		c = emotion.Classify(*scores)
		metrics.RecordSample("classified")
	} else {
		metrics.RecordSample("no_face")
	}

	if ctx.Err() != nil {
		return
	}
	s.emit(c, s.now())
}

func (s *Sampler) emit(c emotion.Classified, at time.Time) {
	s.mu.Lock()
	s.current = c
	s.hasCurrent = true
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.mu.Unlock()

	metrics.RecordEmotion(string(c.Label))
	for _, o := range obs {
		o(c, at)
	}
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
