// Package audio owns microphone capture for one student interface and hands
// finished clips to a transcription collaborator.
package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const (
	defaultTimeslice         = time.Second
	defaultAcquireTimeout    = 10 * time.Second
	defaultTranscribeTimeout = 30 * time.Second
)

// State is the recording state. Transitions are strictly
// Idle -> Recording -> Finalizing -> Idle.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// PreferredMIMETypes lists encodings from most to least preferred.
var PreferredMIMETypes = []string{ //nolint:gochecknoglobals // ordered preference list
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/ogg;codecs=opus",
	"audio/wav",
}

// Clip is one finished recording ready for transcription.
type Clip struct {
	AudioBase64 string
	MIMEType    string
	Size        int
}

// Transcriber turns a clip into text. Implementations report rate limiting
// and quota exhaustion with failure.ErrRateLimited and failure.ErrQuotaExhausted.
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (string, error)
}

// Bridge is the capture and transcription state machine of one interface.
type Bridge struct {
	mic         device.Microphone
	caps        device.Capabilities
	transcriber Transcriber
	preferred   []string

	timeslice         time.Duration
	acquireTimeout    time.Duration
	transcribeTimeout time.Duration
	log               logger.Logger

	mu        sync.Mutex
	state     State
	acquiring bool
	aborted   bool
	stream    device.AudioStream
	collected chan []byte
	observers map[uint64]func(State)
	nextID    uint64
}

// New creates a bridge. Capabilities are probed once here.
func New(mic device.Microphone, prober device.Prober, t Transcriber, opts ...Option) *Bridge {
	b := &Bridge{
		mic:               mic,
		caps:              prober.Capabilities(),
		transcriber:       t,
		preferred:         PreferredMIMETypes,
		timeslice:         defaultTimeslice,
		acquireTimeout:    defaultAcquireTimeout,
		transcribeTimeout: defaultTranscribeTimeout,
		log:               logger.Get().Named("audio"),
		observers:         make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current recording state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Capturing reports whether audio is being recorded right now.
func (b *Bridge) Capturing() bool {
	return b.State() == Recording
}

// Subscribe registers a state observer and returns its cancel func.
func (b *Bridge) Subscribe(fn func(State)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// MIMEType returns the encoding StartRecording will request, empty for the
// runtime default.
func (b *Bridge) MIMEType() string {
	for _, m := range b.preferred {
		if b.caps.SupportsMIMEType(m) {
			return m
		}
	}
	return ""
}

// StartRecording acquires the microphone and starts buffering. A second call
// while a recording is outstanding fails with ErrAlreadyRecording.
func (b *Bridge) StartRecording(ctx context.Context) error {
	const op = "audio.StartRecording"

	if b.caps.Microphone != device.Available {
		return failure.New(op, failure.ErrUnsupported)
	}

	b.mu.Lock()
	if b.state != Idle || b.acquiring {
		b.mu.Unlock()
		return ErrAlreadyRecording
	}
	b.acquiring = true
	b.aborted = false
	b.mu.Unlock()

	actx, cancel := bounded(ctx, b.acquireTimeout)
	stream, err := b.mic.OpenAudio(actx, device.DefaultAudio, device.RecorderOptions{
		MIMEType:  b.MIMEType(),
		Timeslice: b.timeslice,
	})
	cancel()

	b.mu.Lock()
	b.acquiring = false
	if b.aborted {
		b.aborted = false
		b.mu.Unlock()
		if err == nil {
			if cerr := stream.Close(); cerr != nil {
				b.log.Warn(ctx, "closing audio stream", logger.Error(cerr))
			}
		}
		metrics.RecordRecording("aborted")
		return ErrAborted
	}
	if err != nil {
		b.mu.Unlock()
		metrics.RecordRecording("denied")
		if errors.Is(err, device.ErrPermissionDenied) || errors.Is(err, device.ErrNotFound) {
			return failure.Wrap(op, failure.ErrPermissionDenied, err)
		}
		return failure.Wrap(op, failure.ErrHardwareUnavailable, err)
	}
	collected := make(chan []byte, 1)
	b.stream = stream
	b.collected = collected
	b.state = Recording
	b.mu.Unlock()

	go collect(stream.Chunks(), collected)

	metrics.RecordRecording("started")
	b.log.Info(ctx, "recording started", logger.String("mime_type", stream.MIMEType()))
	b.notify(Recording)
	return nil
}

// StopRecording finalizes the clip and returns its transcript. The finalize
// sequence runs detached from ctx cancellation and is bounded by the
// transcription timeout. The bridge is Idle again when it returns.
func (b *Bridge) StopRecording(ctx context.Context) (string, error) {
	const op = "audio.StopRecording"

	b.mu.Lock()
	if b.state != Recording {
		b.mu.Unlock()
		return "", ErrNoActiveRecording
	}
	b.state = Finalizing
	stream, collected := b.stream, b.collected
	b.mu.Unlock()
	b.notify(Finalizing)
	defer b.reset()

	start := time.Now()
	fctx, cancel := bounded(context.WithoutCancel(ctx), b.transcribeTimeout)
	defer cancel()

	data := b.drain(fctx, stream, collected)

	if len(data) == 0 {
		metrics.RecordRecording("empty")
		return "", failure.Wrap(op, failure.ErrTranscriptionFailed, ErrEmptyClip)
	}

	clip := Clip{
		AudioBase64: base64.StdEncoding.EncodeToString(data),
		MIMEType:    stream.MIMEType(),
		Size:        len(data),
	}
	text, err := b.transcriber.Transcribe(fctx, clip)
	metrics.RecordTranscriptionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		wrapped := failure.Wrap(op, failure.TranscriptionKind(err), err)
		metrics.RecordRecording("failed")
		metrics.RecordTranscriptionError(failure.KindName(wrapped))
		b.log.Warn(ctx, "transcription failed", logger.Error(err), logger.Int("bytes", clip.Size))
		return "", wrapped
	}

	metrics.RecordRecording("transcribed")
	b.log.Info(ctx, "recording transcribed", logger.Int("bytes", clip.Size), logger.Int("chars", len(text)))
	return text, nil
}

// Abort releases the microphone without transcribing. An Abort while the
// microphone is still being acquired makes that StartRecording release the
// stream and fail with ErrAborted. Otherwise it is a no-op unless recording.
func (b *Bridge) Abort() {
	b.mu.Lock()
	if b.acquiring {
		b.aborted = true
		b.mu.Unlock()
		return
	}
	if b.state != Recording {
		b.mu.Unlock()
		return
	}
	b.state = Finalizing
	stream, collected := b.stream, b.collected
	b.mu.Unlock()
	b.notify(Finalizing)

	if err := stream.Close(); err != nil {
		b.log.Warn(context.Background(), "closing audio stream", logger.Error(err))
	}
	<-collected
	metrics.RecordRecording("aborted")
	b.reset()
}

// drain stops the recorder, waits for the final chunk and releases the
// tracks. On timeout whatever was buffered so far is used.
func (b *Bridge) drain(ctx context.Context, stream device.AudioStream, collected <-chan []byte) []byte {
	if err := stream.Stop(ctx); err != nil {
		b.log.Warn(ctx, "stopping recorder", logger.Error(err))
	}
	var data []byte
	select {
	case data = <-collected:
	case <-ctx.Done():
		b.log.Warn(ctx, "final audio chunk not flushed in time")
		_ = stream.Close()
		data = <-collected
	}
	if err := stream.Close(); err != nil {
		b.log.Warn(ctx, "closing audio stream", logger.Error(err))
	}
	return data
}

func (b *Bridge) reset() {
	b.mu.Lock()
	b.state = Idle
	b.stream = nil
	b.collected = nil
	b.mu.Unlock()
	b.notify(Idle)
}

func (b *Bridge) notify(s State) {
	b.mu.Lock()
	obs := make([]func(State), 0, len(b.observers))
	for _, fn := range b.observers {
		obs = append(obs, fn)
	}
	b.mu.Unlock()
	for _, fn := range obs {
		fn(s)
	}
}

// collect concatenates chunks until the stream closes them.
func collect(chunks <-chan []byte, out chan<- []byte) {
	var buf []byte
	for c := range chunks {
		buf = append(buf, c...)
	}
	out <- buf
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
