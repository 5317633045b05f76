package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
	"github.com/okian/classvoice/internal/audio"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/recorder"
	"github.com/okian/classvoice/internal/sampler"
	"github.com/okian/classvoice/internal/speech"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

// Interface is one mounted student interface. Sampler and audio are nil when
// their collaborator is not configured.
type Interface struct {
	id        string
	studentID string
	language  string

	svc      *Service
	client   Client
	sampler  *sampler.Sampler
	audio    *audio.Bridge
	speech   *speech.Controller
	recorder *recorder.Recorder
	log      logger.Logger

	unsubscribe []func()
	unmountOnce sync.Once
}

// State is the snapshot pushed to the client on every change.
type State struct {
	Session    string  `json:"session"`
	Detecting  bool    `json:"detecting"`
	Degraded   bool    `json:"degraded"`
	Emotion    string  `json:"emotion,omitempty"`
	Confidence float64 `json:"confidence"`
	Recording  string  `json:"recording"`
	Speaking   bool    `json:"speaking"`
}

func newInterface(s *Service, c Client, id, studentID, lang string) *Interface {
	in := &Interface{
		id:        id,
		studentID: studentID,
		language:  lang,
		svc:       s,
		client:    c,
		log:       s.logger.Named("interface").With(logger.String("interface_id", id), logger.String("student_id", studentID)),
	}

	in.speech = speech.New(c, c, speech.WithLanguage(lang))

	if s.transcriber != nil {
		var opts []audio.Option
		if s.acquireTimeout > 0 {
			opts = append(opts, audio.WithAcquireTimeout(s.acquireTimeout))
		}
		if s.transcribeTimeout > 0 {
			opts = append(opts, audio.WithTranscribeTimeout(s.transcribeTimeout))
		}
		in.audio = audio.New(c, c, s.transcriber, opts...)
	}

	if s.detector != nil {
		var opts []sampler.Option
		if s.samplingInterval > 0 {
			opts = append(opts, sampler.WithInterval(s.samplingInterval))
		}
		if s.samplingWarmup > 0 {
			opts = append(opts, sampler.WithWarmup(s.samplingWarmup))
		}
		if s.acquireTimeout > 0 {
			opts = append(opts, sampler.WithAcquireTimeout(s.acquireTimeout))
		}
		if s.detectTimeout > 0 {
			opts = append(opts, sampler.WithDetectTimeout(s.detectTimeout))
		}
		in.sampler = sampler.New(c, s.detector, opts...)
	}

	recOpts := []recorder.Option{
		recorder.WithQueueSize(s.queueSize),
		recorder.WithFlushTimeout(s.flushTimeout),
	}
	if in.audio != nil {
		recOpts = append(recOpts, recorder.WithActivity(in.audio))
	}
	if in.sampler != nil {
		recOpts = append(recOpts, recorder.WithStopper(in.sampler))
	}
	in.recorder = recorder.New(s.store, recOpts...)

	return in
}

// ID returns the interface ID.
func (in *Interface) ID() string { return in.id }

// StudentID returns the student the interface belongs to.
func (in *Interface) StudentID() string { return in.studentID }

// Language returns the session language.
func (in *Interface) Language() string { return in.language }

func (in *Interface) mount(ctx context.Context) {
	if in.sampler != nil {
		in.sampler.Preload(context.WithoutCancel(ctx))
		in.unsubscribe = append(in.unsubscribe, in.sampler.Subscribe(func(c emotion.Classified, at time.Time) {
			in.recorder.Observe(c, at)
			in.pushState()
		}))
	}
	if in.audio != nil {
		in.unsubscribe = append(in.unsubscribe, in.audio.Subscribe(func(audio.State) { in.pushState() }))
	}
	in.unsubscribe = append(in.unsubscribe, in.speech.Subscribe(func(bool) { in.pushState() }))

	if err := in.recorder.Open(ctx, in.studentID, in.language); err != nil {
		in.log.Warn(ctx, "session not opened, continuing without emotion history", logger.Error(err))
	}

	in.client.SetCommandHandler(in.handle)
	metrics.InterfaceMounted()
	in.log.Info(ctx, "interface mounted", logger.String("language", in.language))
	in.pushState()
}

func (in *Interface) unmount(ctx context.Context) {
	in.unmountOnce.Do(func() {
		in.speech.Stop()
		if in.audio != nil {
			in.audio.Abort()
		}
		if err := in.recorder.Close(ctx); err != nil {
			in.log.Warn(ctx, "session close failed", logger.Error(err))
		}
		for _, fn := range in.unsubscribe {
			fn()
		}
		metrics.InterfaceUnmounted()
		in.log.Info(ctx, "interface unmounted")
	})
}

// State returns the current interface snapshot.
func (in *Interface) State() State {
	st := State{
		Session:   in.recorder.State().String(),
		Recording: audio.Idle.String(),
		Speaking:  in.speech.IsSpeaking(),
	}
	if in.sampler != nil {
		st.Detecting = in.sampler.Active()
		st.Degraded = in.sampler.Degraded()
		if c, ok := in.sampler.Current(); ok && st.Detecting {
			st.Emotion = string(c.Label)
			st.Confidence = c.Confidence
		}
	}
	if in.audio != nil {
		st.Recording = in.audio.State().String()
	}
	return st
}

func (in *Interface) pushState() {
	if err := in.client.Notify(devicebridge.TypeState, in.State()); err != nil {
		in.log.Debug(context.Background(), "state push failed", logger.Error(err))
	}
}
