package devicebridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/pkg/logger"
)

const chunkBuffer = 256

// OpenVideo asks the client to start its camera.
func (p *Peer) OpenVideo(ctx context.Context, c device.VideoConstraints) (device.VideoStream, error) {
	if _, err := p.Request(ctx, TypeCameraOpen, c); err != nil {
		return nil, err
	}
	return &videoStream{peer: p}, nil
}

type videoStream struct {
	peer   *Peer
	once   sync.Once
	closed atomic.Bool
}

func (v *videoStream) Frame(ctx context.Context) (device.Frame, error) {
	if v.closed.Load() {
		return device.Frame{}, device.ErrClosed
	}
	r, err := v.peer.Request(ctx, TypeCameraFrame, nil)
	if err != nil {
		return device.Frame{}, err
	}
	var wf wireFrame
	if err := json.Unmarshal(r.Data, &wf); err != nil {
		return device.Frame{}, fmt.Errorf("%w: frame: %v", ErrBadMessage, err)
	}
	return device.Frame{
		Data:       wf.Data,
		Format:     wf.Format,
		Width:      wf.Width,
		Height:     wf.Height,
		CapturedAt: time.Now(),
	}, nil
}

func (v *videoStream) Close() error {
	v.once.Do(func() {
		v.closed.Store(true)
		_ = v.peer.Notify(TypeCameraClose, nil)
	})
	return nil
}

// OpenAudio asks the client to start its microphone and recorder.
func (p *Peer) OpenAudio(ctx context.Context, c device.AudioConstraints, opts device.RecorderOptions) (device.AudioStream, error) {
	s := &audioStream{
		peer:     p,
		id:       p.newID(),
		mime:     opts.MIMEType,
		chunks:   make(chan []byte, chunkBuffer),
		finished: make(chan struct{}),
	}
	// registered first so chunks racing the reply are kept
	p.mu.Lock()
	p.streams[s.id] = s
	p.mu.Unlock()

	r, err := p.Request(ctx, TypeMicOpen, micOpen{
		StreamID:    s.id,
		Constraints: c,
		MIMEType:    opts.MIMEType,
		TimesliceMS: opts.Timeslice.Milliseconds(),
	})
	if err != nil {
		p.removeStream(s.id)
		s.finish()
		return nil, err
	}
	var opened micOpened
	if len(r.Data) > 0 && json.Unmarshal(r.Data, &opened) == nil && opened.MIMEType != "" {
		s.mime = opened.MIMEType
	}
	return s, nil
}

func (p *Peer) removeStream(id string) {
	p.mu.Lock()
	delete(p.streams, id)
	p.mu.Unlock()
}

type audioStream struct {
	peer     *Peer
	id       string
	mime     string
	chunks   chan []byte
	finished chan struct{}

	mu        sync.Mutex
	done      bool
	closeOnce sync.Once
}

func (s *audioStream) Chunks() <-chan []byte { return s.chunks }

func (s *audioStream) MIMEType() string { return s.mime }

// Stop asks the recorder to flush and waits for the client to confirm.
func (s *audioStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return nil
	}
	if err := s.peer.Notify(TypeMicStop, streamRef{StreamID: s.id}); err != nil {
		s.finish()
		return err
	}
	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *audioStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.peer.Notify(TypeMicClose, streamRef{StreamID: s.id})
		s.peer.removeStream(s.id)
		s.finish()
	})
	return nil
}

func (s *audioStream) push(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.chunks <- b:
	default:
		s.peer.log.Warn(context.Background(), "audio chunk dropped", logger.String("stream_id", s.id))
	}
}

func (s *audioStream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.chunks)
	close(s.finished)
}

// Speak sends an utterance to the client synthesizer.
func (p *Peer) Speak(_ context.Context, u device.Utterance) error {
	return p.Notify(TypeSpeechSpeak, u)
}

// Cancel stops any client playback.
func (p *Peer) Cancel() {
	_ = p.Notify(TypeSpeechCancel, nil)
}

// Voices returns the client's current voice catalog.
func (p *Peer) Voices() []device.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]device.Voice(nil), p.voices...)
}

// SetObserver registers the receiver of playback and catalog events.
func (p *Peer) SetObserver(o device.SpeechObserver) {
	p.mu.Lock()
	p.observer = o
	p.mu.Unlock()
}
