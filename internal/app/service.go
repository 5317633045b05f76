// Package service wires the communication core together. A Service holds the
// process-wide collaborators; every connected student browser is mounted as
// its own Interface with private sampler, recorder, audio and speech state.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
	"github.com/okian/classvoice/internal/adapters/textai"
	"github.com/okian/classvoice/internal/audio"
	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/internal/recorder"
	"github.com/okian/classvoice/internal/sampler"
	"github.com/okian/classvoice/internal/symbols"
	"github.com/okian/classvoice/pkg/logger"
)

// Client is one connected student browser: the hardware of an Interface.
type Client interface {
	device.Prober
	device.Camera
	device.Microphone
	device.SpeechEngine
	WaitHello(ctx context.Context) (devicebridge.Hello, error)
	SetCommandHandler(h devicebridge.CommandHandler)
	Notify(typ string, payload any) error
}

// TextProcessor runs the text-AI actions.
type TextProcessor interface {
	Process(ctx context.Context, req textai.Request) (string, error)
}

// Service implements the API dependencies for the communication core.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store       recorder.Store
	detector    sampler.Detector
	transcriber audio.Transcriber
	text        TextProcessor
	catalog     *symbols.Catalog

	// Per-interface tuning
	defaultLanguage   string
	helloTimeout      time.Duration
	samplingInterval  time.Duration
	samplingWarmup    time.Duration
	acquireTimeout    time.Duration
	detectTimeout     time.Duration
	transcribeTimeout time.Duration
	queueSize         int
	flushTimeout      time.Duration

	// State
	started    bool
	interfaces map[string]*Interface
	newID      func() string

	logger logger.Logger
}

// New constructs a Service over the persistence collaborator.
func New(store recorder.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		catalog:         symbols.Default(),
		defaultLanguage: defaultLanguage,
		helloTimeout:    defaultHelloTimeout,
		queueSize:       defaultQueueSize,
		flushTimeout:    defaultFlushTimeout,
		interfaces:      map[string]*Interface{},
		newID:           uuid.NewString,
		logger:          logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start marks the service ready to mount interfaces.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}

	s.started = true
	s.logger.Info(ctx, "communication service started",
		logger.Bool("detector", s.detector != nil),
		logger.Bool("transcriber", s.transcriber != nil),
		logger.Bool("text_ai", s.text != nil),
		logger.Int("symbols", len(s.catalog.Cards())),
	)
	return nil
}

// Stop unmounts every interface and refuses new ones.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	mounted := make([]*Interface, 0, len(s.interfaces))
	for _, in := range s.interfaces {
		mounted = append(mounted, in)
	}
	s.interfaces = map[string]*Interface{}
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping communication service", logger.Int("interfaces", len(mounted)))

	var wg sync.WaitGroup
	for _, in := range mounted {
		wg.Add(1)
		go func(in *Interface) {
			defer wg.Done()
			in.unmount(ctx)
		}(in)
	}
	wg.Wait()

	s.logger.Info(ctx, "communication service stopped")
}

// Mount waits for the client's hello and builds its interface. The session
// is opened as part of mounting; a failure there is logged and the
// interface keeps working without persistence of emotion events.
func (s *Service) Mount(ctx context.Context, c Client) (*Interface, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	helloCtx, cancel := context.WithTimeout(ctx, s.helloTimeout)
	hello, err := c.WaitHello(helloCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	studentID := strings.TrimSpace(hello.StudentID)
	if studentID == "" {
		return nil, ErrNoStudent
	}
	lang := hello.Language
	if lang == "" {
		lang = s.defaultLanguage
	}

	in := newInterface(s, c, s.newID(), studentID, lang)

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	s.interfaces[in.id] = in
	s.mu.Unlock()

	in.mount(ctx)
	return in, nil
}

// Unmount tears down a mounted interface. Unknown IDs are ignored.
func (s *Service) Unmount(ctx context.Context, id string) {
	s.mu.Lock()
	in, ok := s.interfaces[id]
	delete(s.interfaces, id)
	s.mu.Unlock()
	if ok {
		in.unmount(ctx)
	}
}

// Interface returns a mounted interface by ID.
func (s *Service) Interface(id string) (*Interface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.interfaces[id]
	return in, ok
}

// Classify runs the emotion classifier over raw scores.
func (s *Service) Classify(scores emotion.Scores) (emotion.Classified, error) {
	if err := scores.Validate(); err != nil {
		return emotion.Classified{}, failure.Wrap("service.Classify", failure.ErrInvalidInput, err)
	}
	return emotion.Classify(scores), nil
}

// Process forwards a request to the text-AI collaborator.
func (s *Service) Process(ctx context.Context, req textai.Request) (string, error) {
	if s.text == nil {
		return "", failure.New("service.Process", failure.ErrCollaboratorDisabled)
	}
	return s.text.Process(ctx, req)
}

// Symbols returns the visual symbol card catalog.
func (s *Service) Symbols() []model.SymbolCard {
	return s.catalog.Cards()
}

// OpenSessionIDs lists the sessions held open by mounted interfaces.
func (s *Service) OpenSessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.interfaces))
	for _, in := range s.interfaces {
		if in.recorder.State() != recorder.SessionOpen {
			continue
		}
		if sess, ok := in.recorder.Session(); ok {
			ids = append(ids, sess.ID)
		}
	}
	return ids
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := 0
	for _, in := range s.interfaces {
		if in.recorder.State() == recorder.SessionOpen {
			open++
		}
	}
	return map[string]interface{}{
		"started":      s.started,
		"interfaces":   len(s.interfaces),
		"openSessions": open,
		"queueSize":    s.queueSize,
		"detector":     s.detector != nil,
		"transcriber":  s.transcriber != nil,
		"textAI":       s.text != nil,
	}
}
