// Package device declares the hardware ports the communication core drives:
// a camera, a microphone and a speech engine, plus a capability query that is
// evaluated once when a component is constructed.
//
// Handles returned by the ports are exclusively owned by the component that
// acquired them and must be released on every exit path.
package device

import (
	"context"
	"time"
)

// Capability reports whether a hardware feature exists on the runtime.
type Capability int

const (
	Unsupported Capability = iota
	Available
)

func (c Capability) String() string {
	if c == Available {
		return "available"
	}
	return "unsupported"
}

// Capabilities is the result of one capability probe.
type Capabilities struct {
	Camera         Capability
	Microphone     Capability
	Speech         Capability
	AudioMIMETypes []string
}

// SupportsMIMEType reports whether the recorder can encode mimeType.
func (c Capabilities) SupportsMIMEType(mimeType string) bool {
	for _, m := range c.AudioMIMETypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// Prober answers the capability query.
type Prober interface {
	Capabilities() Capabilities
}

// VideoConstraints describe the requested camera stream.
type VideoConstraints struct {
	FacingMode string `json:"facing_mode"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// DefaultVideo requests the front camera at 640x480.
var DefaultVideo = VideoConstraints{FacingMode: "user", Width: 640, Height: 480} //nolint:gochecknoglobals // immutable value

// Frame is one still grabbed from a video stream.
type Frame struct {
	Data       []byte
	Format     string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Camera acquires video streams.
type Camera interface {
	OpenVideo(ctx context.Context, c VideoConstraints) (VideoStream, error)
}

// VideoStream is a live camera handle. Close stops every track and tears
// down the capture surface; it is idempotent.
type VideoStream interface {
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

// AudioConstraints describe the requested microphone stream.
type AudioConstraints struct {
	ChannelCount     int  `json:"channel_count"`
	SampleRate       int  `json:"sample_rate"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// DefaultAudio requests mono 16 kHz speech capture.
var DefaultAudio = AudioConstraints{ //nolint:gochecknoglobals // immutable value
	ChannelCount:     1,
	SampleRate:       16000,
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
}

// RecorderOptions configure the encoder attached to an audio stream.
// An empty MIMEType leaves the choice to the runtime.
type RecorderOptions struct {
	MIMEType  string
	Timeslice time.Duration
}

// Microphone acquires audio streams with a recorder attached.
type Microphone interface {
	OpenAudio(ctx context.Context, c AudioConstraints, opts RecorderOptions) (AudioStream, error)
}

// AudioStream is a live microphone handle.
//
// Chunks delivers encoded data roughly every timeslice. After Stop the
// recorder flushes its last chunk and then closes the channel. Close releases
// the tracks and also closes the channel; it is idempotent.
type AudioStream interface {
	Chunks() <-chan []byte
	MIMEType() string
	Stop(ctx context.Context) error
	Close() error
}

// Voice is one entry of a speech engine's voice catalog.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default"`
}

// Utterance is one speech request. A nil Voice uses the engine default.
type Utterance struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  *Voice  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// SpeechObserver receives engine events. For one utterance Ended or Failed
// always follows Started.
type SpeechObserver interface {
	UtteranceStarted(id string)
	UtteranceEnded(id string)
	UtteranceFailed(id string, err error)
	VoicesChanged(voices []Voice)
}

// SpeechEngine plays utterances. Speak queues playback and returns without
// waiting for it to finish.
type SpeechEngine interface {
	Speak(ctx context.Context, u Utterance) error
	Cancel()
	Voices() []Voice
	SetObserver(o SpeechObserver)
}
