// Package recorder owns the communication session of one student interface
// and turns classified emotions into persisted, context-tagged events.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/classvoice/internal/adapters/mq/queue"
	"github.com/okian/classvoice/internal/adapters/mq/worker"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const (
	defaultQueueSize    = 64
	defaultFlushTimeout = 3 * time.Second
)

// Store is the persistence collaborator.
type Store interface {
	// CreateSession inserts s and returns it with its ID assigned.
	CreateSession(ctx context.Context, s model.Session) (model.Session, error)
	AppendEmotionEvent(ctx context.Context, e model.EmotionEvent) error
	AppendMessage(ctx context.Context, m model.Message) error
}

// SessionCloser is implemented by stores that record session end times.
type SessionCloser interface {
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
}

// ActivitySource reports whether the student is capturing voice input.
type ActivitySource interface {
	Capturing() bool
}

// Stopper is the sampler half the recorder shuts down on close.
type Stopper interface {
	StopDetection()
}

// State is the session lifecycle state.
type State int

const (
	NoSession State = iota
	SessionOpen
	SessionClosed
)

func (s State) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	default:
		return "none"
	}
}

// job is one queued write; exactly one field is set.
type job struct {
	event   *model.EmotionEvent
	message *model.Message
}

// Recorder is the NoSession -> SessionOpen -> SessionClosed state machine.
type Recorder struct {
	store        Store
	activity     ActivitySource
	stopper      Stopper
	queueSize    int
	flushTimeout time.Duration
	newID        func() string
	now          func() time.Time
	log          logger.Logger

	mu      sync.Mutex
	state   State
	opening bool
	session model.Session
	queue   *queue.InMemoryQueue[job]
	worker  *worker.Worker[job]
	// stopWorker cancels the worker context, abandoning an in-flight write.
	stopWorker context.CancelFunc
}

// New creates a recorder in NoSession.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:        store,
		queueSize:    defaultQueueSize,
		flushTimeout: defaultFlushTimeout,
		newID:        uuid.NewString,
		now:          time.Now,
		log:          logger.Get().Named("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates the session. On failure the recorder stays in NoSession and
// Open may be retried.
func (r *Recorder) Open(ctx context.Context, studentID, languageCode string) error {
	const op = "recorder.Open"

	if studentID == "" {
		return ErrNoSubject
	}

	r.mu.Lock()
	switch {
	case r.state == SessionClosed:
		r.mu.Unlock()
		return ErrSessionClosed
	case r.state == SessionOpen || r.opening:
		r.mu.Unlock()
		return ErrSessionOpen
	}
	r.opening = true
	r.mu.Unlock()

	created, err := r.store.CreateSession(ctx, model.Session{
		StudentID:    studentID,
		LanguageCode: languageCode,
		StartedAt:    r.now(),
	})
	if err != nil {
		r.mu.Lock()
		r.opening = false
		r.mu.Unlock()
		metrics.RecordSessionError("create")
		r.log.Error(ctx, "session create failed, continuing without a session",
			logger.String("student_id", studentID), logger.Error(err))
		return failure.Wrap(op, failure.ErrPersistenceFailed, err)
	}

	q := queue.NewInMemoryQueue[job](queue.WithCapacity(r.queueSize))
	w := worker.New[job](q, r.persist, worker.WithName("recorder-worker"), worker.WithLogger(r.log))

	// writes outlive the caller's ctx; Close ends them
	wctx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))

	r.mu.Lock()
	r.opening = false
	if r.state == SessionClosed {
		stopWorker()
		// closed while the insert was in flight
		r.mu.Unlock()
		_ = r.closeInStore(ctx, created.ID)
		return ErrSessionClosed
	}
	r.state = SessionOpen
	r.session = created
	r.queue = q
	r.worker = w
	r.stopWorker = stopWorker
	r.mu.Unlock()

	go w.Run(wctx)
	r.log.Info(ctx, "session opened",
		logger.String("session_id", created.ID), logger.String("student_id", studentID))
	return nil
}

// Record appends one emotion event for c. It never blocks; it returns false
// when there is no open session or the event was dropped.
func (r *Recorder) Record(c emotion.Classified, at time.Time) bool {
	tag := model.ContextIdle
	if r.activity != nil && r.activity.Capturing() {
		tag = model.ContextSpeaking
	}

	r.mu.Lock()
	if r.state != SessionOpen {
		r.mu.Unlock()
		return false
	}
	ev := model.EmotionEvent{
		ID:         r.newID(),
		StudentID:  r.session.StudentID,
		SessionID:  r.session.ID,
		Label:      c.Label,
		Confidence: c.Confidence,
		Context:    tag,
		DetectedAt: at,
	}
	q := r.queue
	r.mu.Unlock()

	if !q.Enqueue(context.Background(), job{event: &ev}) {
		metrics.RecordEventDropped("queue_full")
		r.log.Warn(context.Background(), "emotion event dropped",
			logger.String("session_id", ev.SessionID), logger.String("label", string(ev.Label)))
		return false
	}
	metrics.RecordEventEnqueued()
	return true
}

// Observe adapts Record to the sampler observer signature.
func (r *Recorder) Observe(c emotion.Classified, at time.Time) {
	r.Record(c, at)
}

// LogMessage stores a communication message. While a session is open the
// write is queued behind pending emotion events; otherwise it is written
// directly without a session reference.
func (r *Recorder) LogMessage(ctx context.Context, m model.Message) (model.Message, error) {
	const op = "recorder.LogMessage"

	if m.ID == "" {
		m.ID = r.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}

	r.mu.Lock()
	open := r.state == SessionOpen
	if open {
		m.StudentID = r.session.StudentID
		m.SessionID = r.session.ID
		if m.LanguageCode == "" {
			m.LanguageCode = r.session.LanguageCode
		}
	}
	q := r.queue
	r.mu.Unlock()

	if open {
		if !q.Enqueue(ctx, job{message: &m}) {
			return m, failure.Wrap(op, failure.ErrPersistenceFailed, ErrQueueFull)
		}
		return m, nil
	}

	if err := r.store.AppendMessage(ctx, m); err != nil {
		r.log.Error(ctx, "message persist failed", logger.String("message_type", string(m.Type)), logger.Error(err))
		return m, failure.Wrap(op, failure.ErrPersistenceFailed, err)
	}
	metrics.RecordMessageLogged(string(m.Type))
	return m, nil
}

// Close stops the sampler, drains queued writes within the flush timeout and
// asks the store to close the session. It is idempotent.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.state == SessionClosed {
		r.mu.Unlock()
		return nil
	}
	prev := r.state
	r.state = SessionClosed
	q, w, session, stopWorker := r.queue, r.worker, r.session, r.stopWorker
	r.mu.Unlock()

	if r.stopper != nil {
		r.stopper.StopDetection()
	}
	if prev != SessionOpen {
		return nil
	}

	_ = q.Close()
	fctx, cancel := bounded(ctx, r.flushTimeout)
	err := w.Shutdown(fctx)
	cancel()
	stopWorker()
	if err != nil {
		metrics.RecordEventDropped("flush_timeout")
		r.log.Warn(ctx, "flush timed out, pending writes dropped",
			logger.String("session_id", session.ID), logger.Int("pending", q.Len()))
	}

	return r.closeInStore(ctx, session.ID)
}

func (r *Recorder) closeInStore(ctx context.Context, sessionID string) error {
	closer, ok := r.store.(SessionCloser)
	if !ok {
		return nil
	}
	if err := closer.CloseSession(ctx, sessionID, r.now()); err != nil {
		metrics.RecordSessionError("close")
		r.log.Error(ctx, "session close failed", logger.String("session_id", sessionID), logger.Error(err))
		return failure.Wrap("recorder.Close", failure.ErrPersistenceFailed, err)
	}
	r.log.Info(ctx, "session closed", logger.String("session_id", sessionID))
	return nil
}

// State returns the lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns the open or just-closed session. ok is false if none was
// ever created.
func (r *Recorder) Session() (s model.Session, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.session.ID != ""
}

func (r *Recorder) persist(ctx context.Context, j job) error {
	const op = "recorder.persist"

	switch {
	case j.event != nil:
		if err := r.store.AppendEmotionEvent(ctx, *j.event); err != nil {
			metrics.RecordEventDropped("persist_error")
			return failure.Wrap(op, failure.ErrPersistenceFailed, err)
		}
		metrics.RecordEventPersisted()
	case j.message != nil:
		if err := r.store.AppendMessage(ctx, *j.message); err != nil {
			return failure.Wrap(op, failure.ErrPersistenceFailed, err)
		}
		metrics.RecordMessageLogged(string(j.message.Type))
	}
	return nil
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
