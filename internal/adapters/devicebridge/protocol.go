package devicebridge

import (
	"encoding/json"
	"errors"

	"github.com/okian/classvoice/internal/device"
)

// Message types. Requests expect an envelope whose ReplyTo names their ID.
const (
	// client -> server
	TypeHello       = "hello"
	TypeVoices      = "voices"
	TypeMicChunk    = "mic.chunk"
	TypeMicStopped  = "mic.stopped"
	TypeSpeechStart = "speech.start"
	TypeSpeechEnd   = "speech.end"
	TypeSpeechError = "speech.error"

	// server -> client requests
	TypeCameraOpen  = "camera.open"
	TypeCameraFrame = "camera.frame"
	TypeMicOpen     = "mic.open"

	// server -> client notices
	TypeCameraClose  = "camera.close"
	TypeMicStop      = "mic.stop"
	TypeMicClose     = "mic.close"
	TypeSpeechSpeak  = "speech.speak"
	TypeSpeechCancel = "speech.cancel"
	TypeState        = "state"

	// TypeReply answers a request or a command in either direction.
	TypeReply = "reply"
)

// Wire error codes for device failures.
const (
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
)

// Envelope is the frame for every websocket message.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is the first message a client sends.
type Hello struct {
	StudentID      string         `json:"student_id"`
	Language       string         `json:"language"`
	Camera         bool           `json:"camera"`
	Microphone     bool           `json:"microphone"`
	Speech         bool           `json:"speech"`
	AudioMIMETypes []string       `json:"audio_mime_types"`
	Voices         []device.Voice `json:"voices"`
}

// Capabilities converts the hello flags into a capability probe result.
func (h Hello) Capabilities() device.Capabilities {
	return device.Capabilities{
		Camera:         capability(h.Camera),
		Microphone:     capability(h.Microphone),
		Speech:         capability(h.Speech),
		AudioMIMETypes: append([]string(nil), h.AudioMIMETypes...),
	}
}

func capability(ok bool) device.Capability {
	if ok {
		return device.Available
	}
	return device.Unsupported
}

// Reply answers a request or a command.
type Reply struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireFrame struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type micOpen struct {
	StreamID    string                  `json:"stream_id"`
	Constraints device.AudioConstraints `json:"constraints"`
	MIMEType    string                  `json:"mime_type,omitempty"`
	TimesliceMS int64                   `json:"timeslice_ms"`
}

type micOpened struct {
	MIMEType string `json:"mime_type"`
}

type micChunk struct {
	StreamID string `json:"stream_id"`
	Data     []byte `json:"data"`
}

type streamRef struct {
	StreamID string `json:"stream_id"`
}

type speechEvent struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type voicesList struct {
	Voices []device.Voice `json:"voices"`
}

// deviceError maps a wire error code to a device error.
func deviceError(code string) error {
	switch code {
	case CodePermissionDenied:
		return device.ErrPermissionDenied
	case CodeNotFound:
		return device.ErrNotFound
	default:
		return device.ErrUnavailable
	}
}

var (
	// ErrPeerClosed is returned once the websocket is gone.
	ErrPeerClosed = errors.New("devicebridge: peer closed")
	// ErrNoHello is returned when a client never introduced itself.
	ErrNoHello = errors.New("devicebridge: no hello received")
	// ErrBadMessage is returned for envelopes that cannot be decoded.
	ErrBadMessage = errors.New("devicebridge: malformed message")
)
