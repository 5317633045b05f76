// Package devicebridge drives a student's browser over a websocket. The
// browser owns the physical camera, microphone and speech synthesizer; a
// Peer exposes them as device ports and forwards UI commands to a handler.
package devicebridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	maxMessageSize        = 8 << 20
	defaultRequestTimeout = 10 * time.Second
)

// CommandHandler serves one client command. The result is sent back as the
// reply data; an error becomes a failed reply.
type CommandHandler func(ctx context.Context, cmd Envelope) (any, error)

// Peer is one connected browser. It implements device.Prober,
// device.Camera, device.Microphone and device.SpeechEngine.
type Peer struct {
	conn           *websocket.Conn
	requestTimeout time.Duration
	newID          func() string
	log            logger.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan Envelope
	streams  map[string]*audioStream
	hello    *Hello
	voices   []device.Voice
	observer device.SpeechObserver
	handler  CommandHandler

	helloCh   chan struct{}
	helloOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
}

var (
	_ device.Prober       = (*Peer)(nil)
	_ device.Camera       = (*Peer)(nil)
	_ device.Microphone   = (*Peer)(nil)
	_ device.SpeechEngine = (*Peer)(nil)
)

// NewPeer wraps an upgraded connection. Call Run to start reading.
func NewPeer(conn *websocket.Conn, opts ...Option) *Peer {
	p := &Peer{
		conn:           conn,
		requestTimeout: defaultRequestTimeout,
		newID:          uuid.NewString,
		log:            logger.Get().Named("devicebridge"),
		pending:        map[string]chan Envelope{},
		streams:        map[string]*audioStream{},
		helloCh:        make(chan struct{}),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetCommandHandler installs the handler for client commands.
func (p *Peer) SetCommandHandler(h CommandHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Run reads until the connection ends or ctx is cancelled. A normal close
// returns nil.
func (p *Peer) Run(ctx context.Context) error {
	defer p.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go p.keepalive(ctx)

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if p.closing.Load() || ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("devicebridge: read: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || (env.Type == "" && env.ReplyTo == "") {
			p.log.Warn(ctx, "dropping malformed message", logger.Int("bytes", len(data)))
			continue
		}
		p.dispatch(ctx, env)
	}
}

// Done is closed once the peer has shut down.
func (p *Peer) Done() <-chan struct{} { return p.closed }

// Close sends a normal close frame and tears the connection down.
func (p *Peer) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	p.writeMu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	p.writeMu.Unlock()
	err := p.conn.Close()
	p.shutdown()
	return err
}

// WaitHello blocks until the client introduced itself.
func (p *Peer) WaitHello(ctx context.Context) (Hello, error) {
	select {
	case <-p.helloCh:
		p.mu.Lock()
		defer p.mu.Unlock()
		return *p.hello, nil
	case <-p.closed:
		return Hello{}, ErrPeerClosed
	case <-ctx.Done():
		return Hello{}, fmt.Errorf("%w: %v", ErrNoHello, ctx.Err())
	}
}

// Notify sends a message that expects no answer.
func (p *Peer) Notify(typ string, payload any) error {
	env := Envelope{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("devicebridge: encode %s: %w", typ, err)
		}
		env.Payload = b
	}
	return p.send(env)
}

// Request sends a message and waits for its reply. A failed reply is
// returned as the matching device error.
func (p *Peer) Request(ctx context.Context, typ string, payload any) (Reply, error) {
	id := p.newID()
	ch := make(chan Envelope, 1)

	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	env := Envelope{ID: id, Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Reply{}, fmt.Errorf("devicebridge: encode %s: %w", typ, err)
		}
		env.Payload = b
	}
	if err := p.send(env); err != nil {
		return Reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	select {
	case in := <-ch:
		var r Reply
		if err := json.Unmarshal(in.Payload, &r); err != nil {
			return Reply{}, fmt.Errorf("%w: %s reply: %v", ErrBadMessage, typ, err)
		}
		if !r.OK {
			return r, fmt.Errorf("%s: %w", typ, deviceError(r.Error))
		}
		return r, nil
	case <-p.closed:
		return Reply{}, ErrPeerClosed
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%s: %w", typ, ctx.Err())
	}
}

func (p *Peer) send(env Envelope) error {
	select {
	case <-p.closed:
		return ErrPeerClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("devicebridge: write %s: %w", env.Type, err)
	}
	return nil
}

func (p *Peer) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
			return
		case <-p.closed:
			return
		case <-ticker.C:
			p.writeMu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			p.writeMu.Unlock()
			if err != nil {
				_ = p.conn.Close()
				return
			}
		}
	}
}

func (p *Peer) shutdown() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		streams := make([]*audioStream, 0, len(p.streams))
		for _, s := range p.streams {
			streams = append(streams, s)
		}
		p.streams = map[string]*audioStream{}
		p.mu.Unlock()
		for _, s := range streams {
			s.finish()
		}
	})
}

func (p *Peer) dispatch(ctx context.Context, env Envelope) {
	if env.ReplyTo != "" {
		p.mu.Lock()
		ch, ok := p.pending[env.ReplyTo]
		p.mu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
		}
		return
	}

	switch env.Type {
	case TypeHello:
		var h Hello
		if err := json.Unmarshal(env.Payload, &h); err != nil {
			p.log.Warn(ctx, "bad hello", logger.Error(err))
			return
		}
		p.mu.Lock()
		p.hello = &h
		p.voices = append([]device.Voice(nil), h.Voices...)
		p.mu.Unlock()
		p.helloOnce.Do(func() { close(p.helloCh) })

	case TypeVoices:
		var v voicesList
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return
		}
		p.mu.Lock()
		p.voices = append([]device.Voice(nil), v.Voices...)
		obs := p.observer
		p.mu.Unlock()
		if obs != nil {
			obs.VoicesChanged(v.Voices)
		}

	case TypeMicChunk:
		var c micChunk
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return
		}
		if s := p.stream(c.StreamID); s != nil {
			s.push(c.Data)
		}

	case TypeMicStopped:
		var ref streamRef
		if err := json.Unmarshal(env.Payload, &ref); err != nil {
			return
		}
		if s := p.stream(ref.StreamID); s != nil {
			s.finish()
		}

	case TypeSpeechStart, TypeSpeechEnd, TypeSpeechError:
		var ev speechEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return
		}
		p.mu.Lock()
		obs := p.observer
		p.mu.Unlock()
		if obs == nil {
			return
		}
		switch env.Type {
		case TypeSpeechStart:
			obs.UtteranceStarted(ev.ID)
		case TypeSpeechEnd:
			obs.UtteranceEnded(ev.ID)
		default:
			obs.UtteranceFailed(ev.ID, errors.New(ev.Error))
		}

	default:
		if env.ID == "" {
			p.log.Debug(ctx, "ignoring unknown notice", logger.String("type", env.Type))
			return
		}
		go p.serveCommand(ctx, env)
	}
}

func (p *Peer) serveCommand(ctx context.Context, cmd Envelope) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	var (
		data any
		err  error
	)
	if h == nil {
		err = failure.Wrap("devicebridge.command", failure.ErrInvalidInput, fmt.Errorf("unknown command %q", cmd.Type))
	} else {
		data, err = h(ctx, cmd)
	}

	r := Reply{OK: err == nil}
	if err != nil {
		r.Error = failure.KindName(err)
		r.Message = failure.UserMessage(err)
	} else if data != nil {
		b, merr := json.Marshal(data)
		if merr != nil {
			r = Reply{Error: "other", Message: failure.UserMessage(merr)}
		} else {
			r.Data = b
		}
	}
	b, _ := json.Marshal(r)
	if serr := p.send(Envelope{Type: TypeReply, ReplyTo: cmd.ID, Payload: b}); serr != nil && !errors.Is(serr, ErrPeerClosed) {
		p.log.Warn(ctx, "reply failed", logger.String("command", cmd.Type), logger.Error(serr))
	}
}

func (p *Peer) stream(id string) *audioStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[id]
}

// Capabilities implements device.Prober from the client's hello. Before the
// hello everything is unsupported.
func (p *Peer) Capabilities() device.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hello == nil {
		return device.Capabilities{}
	}
	return p.hello.Capabilities()
}
