// Package speech plays synthesized speech one utterance at a time.
package speech

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const (
	defaultRate   = 0.9
	defaultPitch  = 1.0
	defaultVolume = 1.0
)

// Controller enforces a single active utterance over a speech engine.
//
// IsSpeaking is driven by engine events. Events that belong to a superseded
// utterance are ignored, so observers never see two overlapping true periods.
type Controller struct {
	engine   device.SpeechEngine
	caps     device.Capabilities
	language string
	newID    func() string
	log      logger.Logger

	// speakMu serializes the cancel-then-speak sequence of Speak and Stop so
	// the engine only ever plays the utterance recorded in current.
	speakMu sync.Mutex

	// emitMu orders state changes with their notifications. It is never
	// held while calling into the engine.
	emitMu sync.Mutex

	mu           sync.Mutex
	voices       []device.Voice
	defaultVoice *device.Voice
	current      string
	speaking     bool
	observers    map[uint64]func(bool)
	nextID       uint64
}

// New creates a controller, registers it with the engine and loads the
// voices the engine already knows about.
func New(engine device.SpeechEngine, prober device.Prober, opts ...Option) *Controller {
	c := &Controller{
		engine:    engine,
		caps:      prober.Capabilities(),
		language:  "en-US",
		newID:     uuid.NewString,
		log:       logger.Get().Named("speech"),
		observers: make(map[uint64]func(bool)),
	}
	for _, opt := range opts {
		opt(c)
	}
	engine.SetObserver(engineEvents{c})
	c.loadVoices(engine.Voices())
	return c
}

// Speak cancels whatever is playing and queues text. An empty lang uses the
// default voice. It returns the utterance ID.
func (c *Controller) Speak(ctx context.Context, text, lang string) (string, error) {
	const op = "speech.Speak"

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if c.caps.Speech != device.Available {
		return "", failure.New(op, failure.ErrUnsupported)
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	id := c.newID()
	c.emitMu.Lock()
	c.mu.Lock()
	superseded := c.current != ""
	wasSpeaking := c.speaking
	c.current = id
	c.speaking = false
	voice := c.selectVoice(lang)
	c.mu.Unlock()
	if wasSpeaking {
		c.notify(false)
	}
	c.emitMu.Unlock()

	c.engine.Cancel()
	if superseded {
		metrics.RecordUtteranceCancelled()
	}

	c.mu.Lock()
	live := c.current == id
	c.mu.Unlock()
	if !live {
		return id, nil
	}

	u := device.Utterance{
		ID:     id,
		Text:   text,
		Lang:   lang,
		Voice:  voice,
		Rate:   defaultRate,
		Pitch:  defaultPitch,
		Volume: defaultVolume,
	}
	if u.Lang == "" && voice != nil {
		u.Lang = voice.Lang
	}
	if err := c.engine.Speak(ctx, u); err != nil {
		c.mu.Lock()
		if c.current == id {
			c.current = ""
		}
		c.mu.Unlock()
		return "", failure.Wrap(op, failure.ErrHardwareUnavailable, err)
	}
	metrics.RecordUtterance()
	c.log.Debug(ctx, "utterance queued", logger.String("utterance_id", id), logger.String("lang", u.Lang))
	return id, nil
}

// Stop cancels playback. It waits only for an in-flight Speak to hand its
// utterance to the engine. It is idempotent.
func (c *Controller) Stop() {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.emitMu.Lock()
	c.mu.Lock()
	hadUtterance := c.current != ""
	wasSpeaking := c.speaking
	c.current = ""
	c.speaking = false
	c.mu.Unlock()
	if wasSpeaking {
		c.notify(false)
	}
	c.emitMu.Unlock()

	c.engine.Cancel()
	if hadUtterance {
		metrics.RecordUtteranceCancelled()
	}
}

// IsSpeaking reports whether the current utterance is playing.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Voices returns the known voice catalog.
func (c *Controller) Voices() []device.Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]device.Voice(nil), c.voices...)
}

// DefaultVoice returns the voice used when no language matches, nil for the
// engine default.
func (c *Controller) DefaultVoice() *device.Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defaultVoice == nil {
		return nil
	}
	v := *c.defaultVoice
	return &v
}

// Subscribe registers an IsSpeaking observer and returns its cancel func.
func (c *Controller) Subscribe(fn func(speaking bool)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Controller) started(id string) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	changed := id == c.current && !c.speaking
	if changed {
		c.speaking = true
	}
	c.mu.Unlock()
	if changed {
		c.notify(true)
	}
}

func (c *Controller) finished(id string) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if id != c.current {
		c.mu.Unlock()
		return
	}
	c.current = ""
	changed := c.speaking
	c.speaking = false
	c.mu.Unlock()
	if changed {
		c.notify(false)
	}
}

// loadVoices replaces the catalog and re-runs default voice selection.
func (c *Controller) loadVoices(voices []device.Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices = append([]device.Voice(nil), voices...)
	c.defaultVoice = nil
	if v := matchLanguage(c.voices, c.language); v != nil {
		c.defaultVoice = v
		return
	}
	for i := range c.voices {
		if c.voices[i].Default {
			c.defaultVoice = &c.voices[i]
			return
		}
	}
	if len(c.voices) > 0 {
		c.defaultVoice = &c.voices[0]
	}
}

// selectVoice must be called with mu held.
func (c *Controller) selectVoice(lang string) *device.Voice {
	var v *device.Voice
	if lang != "" {
		v = matchLanguage(c.voices, lang)
	}
	if v == nil {
		v = c.defaultVoice
	}
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func (c *Controller) notify(speaking bool) {
	c.mu.Lock()
	obs := make([]func(bool), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.mu.Unlock()
	for _, fn := range obs {
		fn(speaking)
	}
}

// matchLanguage returns the first voice sharing lang's primary subtag.
func matchLanguage(voices []device.Voice, lang string) *device.Voice {
	want := primarySubtag(lang)
	if want == "" {
		return nil
	}
	for i := range voices {
		if primarySubtag(voices[i].Lang) == want {
			return &voices[i]
		}
	}
	return nil
}

func primarySubtag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// engineEvents adapts engine callbacks onto the controller.
type engineEvents struct{ c *Controller }

func (e engineEvents) UtteranceStarted(id string) { e.c.started(id) }

func (e engineEvents) UtteranceEnded(id string) { e.c.finished(id) }

func (e engineEvents) UtteranceFailed(id string, err error) {
	e.c.log.Warn(context.Background(), "utterance failed", logger.String("utterance_id", id), logger.Error(err))
	e.c.finished(id)
}

func (e engineEvents) VoicesChanged(voices []device.Voice) {
	e.c.loadVoices(voices)
	e.c.log.Debug(context.Background(), "voice catalog changed", logger.Int("voices", len(voices)))
}
