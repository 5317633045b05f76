// Package devicetest provides in-memory device ports for tests.
package devicetest

import (
	"context"
	"sync"
	"time"

	"github.com/okian/classvoice/internal/device"
)

// Camera is a scripted device.Camera.
type Camera struct {
	mu      sync.Mutex
	err     error
	streams []*VideoStream
	opened  []device.VideoConstraints
}

// NewCamera returns a camera whose OpenVideo fails with err when non-nil.
func NewCamera(err error) *Camera { return &Camera{err: err} }

func (c *Camera) OpenVideo(ctx context.Context, vc device.VideoConstraints) (device.VideoStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, vc)
	if c.err != nil {
		return nil, c.err
	}
	s := &VideoStream{}
	c.streams = append(c.streams, s)
	return s, nil
}

// Opened returns the constraints of every OpenVideo call.
func (c *Camera) Opened() []device.VideoConstraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]device.VideoConstraints(nil), c.opened...)
}

// Streams returns the streams handed out so far.
func (c *Camera) Streams() []*VideoStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*VideoStream(nil), c.streams...)
}

// VideoStream counts frames and records Close.
type VideoStream struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (s *VideoStream) Frame(ctx context.Context) (device.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.Frame{}, device.ErrClosed
	}
	s.frames++
	return device.Frame{Data: []byte("jpeg"), Format: "image/jpeg", Width: 640, Height: 480, CapturedAt: time.Now()}, nil
}

func (s *VideoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *VideoStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frames returns how many frames were grabbed.
func (s *VideoStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Microphone is a scripted device.Microphone.
type Microphone struct {
	mu      sync.Mutex
	err     error
	final   []byte
	streams []*AudioStream
	opts    []device.RecorderOptions
}

// NewMicrophone returns a microphone whose OpenAudio fails with err when
// non-nil. final is flushed as the last chunk of every stream on Stop.
func NewMicrophone(err error, final []byte) *Microphone {
	return &Microphone{err: err, final: final}
}

func (m *Microphone) OpenAudio(ctx context.Context, ac device.AudioConstraints, opts device.RecorderOptions) (device.AudioStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	mime := opts.MIMEType
	if mime == "" {
		mime = "audio/webm"
	}
	s := &AudioStream{chunks: make(chan []byte, 16), mime: mime, final: m.final, constraints: ac}
	m.streams = append(m.streams, s)
	return s, nil
}

// Options returns the recorder options of every OpenAudio call.
func (m *Microphone) Options() []device.RecorderOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]device.RecorderOptions(nil), m.opts...)
}

// Streams returns the streams handed out so far.
func (m *Microphone) Streams() []*AudioStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AudioStream(nil), m.streams...)
}

// Last returns the most recent stream or nil.
func (m *Microphone) Last() *AudioStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// AudioStream buffers pushed chunks.
type AudioStream struct {
	mu          sync.Mutex
	chunks      chan []byte
	mime        string
	final       []byte
	constraints device.AudioConstraints
	done        bool
	closed      bool
}

// Push delivers one chunk as the recorder would on a timeslice.
func (s *AudioStream) Push(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.chunks <- b
	}
}

func (s *AudioStream) Chunks() <-chan []byte { return s.chunks }

func (s *AudioStream) MIMEType() string { return s.mime }

// Constraints returns what the stream was opened with.
func (s *AudioStream) Constraints() device.AudioConstraints { return s.constraints }

func (s *AudioStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	if len(s.final) > 0 {
		s.chunks <- s.final
	}
	s.done = true
	close(s.chunks)
	return nil
}

func (s *AudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if !s.done {
		s.done = true
		close(s.chunks)
	}
	return nil
}

// Closed reports whether the tracks were released.
func (s *AudioStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SpeechEngine records utterances and lets tests fire engine events.
type SpeechEngine struct {
	mu          sync.Mutex
	observer    device.SpeechObserver
	voices      []device.Voice
	spoken      []device.Utterance
	cancels     int
	current     string
	autoStart   bool
	endOnCancel bool
}

// NewSpeechEngine returns an engine with the given catalog. With autoStart
// every Speak fires UtteranceStarted; with endOnCancel Cancel fires
// UtteranceEnded for the playing utterance, as browsers do.
func NewSpeechEngine(voices []device.Voice, autoStart, endOnCancel bool) *SpeechEngine {
	return &SpeechEngine{voices: voices, autoStart: autoStart, endOnCancel: endOnCancel}
}

func (e *SpeechEngine) Speak(ctx context.Context, u device.Utterance) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, u)
	e.current = u.ID
	obs, start := e.observer, e.autoStart
	e.mu.Unlock()
	if start && obs != nil {
		obs.UtteranceStarted(u.ID)
	}
	return nil
}

func (e *SpeechEngine) Cancel() {
	e.mu.Lock()
	e.cancels++
	id, obs, end := e.current, e.observer, e.endOnCancel
	e.current = ""
	e.mu.Unlock()
	if end && obs != nil && id != "" {
		obs.UtteranceEnded(id)
	}
}

func (e *SpeechEngine) Voices() []device.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]device.Voice(nil), e.voices...)
}

func (e *SpeechEngine) SetObserver(o device.SpeechObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

// Spoken returns every utterance handed to Speak.
func (e *SpeechEngine) Spoken() []device.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]device.Utterance(nil), e.spoken...)
}

// Cancels returns how many times Cancel was called.
func (e *SpeechEngine) Cancels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

// Finish fires UtteranceEnded for id.
func (e *SpeechEngine) Finish(id string) {
	e.mu.Lock()
	obs := e.observer
	if e.current == id {
		e.current = ""
	}
	e.mu.Unlock()
	if obs != nil {
		obs.UtteranceEnded(id)
	}
}

// Fail fires UtteranceFailed for id.
func (e *SpeechEngine) Fail(id string, err error) {
	e.mu.Lock()
	obs := e.observer
	e.mu.Unlock()
	if obs != nil {
		obs.UtteranceFailed(id, err)
	}
}

// Start fires UtteranceStarted for id.
func (e *SpeechEngine) Start(id string) {
	e.mu.Lock()
	obs := e.observer
	e.mu.Unlock()
	if obs != nil {
		obs.UtteranceStarted(id)
	}
}

// LoadVoices replaces the catalog and fires VoicesChanged.
func (e *SpeechEngine) LoadVoices(voices []device.Voice) {
	e.mu.Lock()
	e.voices = voices
	obs := e.observer
	e.mu.Unlock()
	if obs != nil {
		obs.VoicesChanged(append([]device.Voice(nil), voices...))
	}
}

// Prober returns a fixed capability set.
type Prober struct {
	Caps device.Capabilities
}

func (p Prober) Capabilities() device.Capabilities { return p.Caps }

// AllAvailable reports every capability with the common browser MIME types.
func AllAvailable() Prober {
	return Prober{Caps: device.Capabilities{
		Camera:         device.Available,
		Microphone:     device.Available,
		Speech:         device.Available,
		AudioMIMETypes: []string{"audio/webm;codecs=opus", "audio/webm"},
	}}
}
