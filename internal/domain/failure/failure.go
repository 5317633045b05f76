// Package failure defines the error taxonomy shared by the communication core.
//
// Components wrap causes with Wrap so callers can branch on the kind with
// errors.Is while the cause stays reachable through errors.Unwrap.
package failure

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrHardwareUnavailable  = errors.New("hardware unavailable")
	ErrUnsupported          = errors.New("unsupported")
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrRateLimited          = errors.New("rate limited")
	ErrQuotaExhausted       = errors.New("quota exhausted")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrAIProcessingFailed   = errors.New("ai processing failed")
	ErrInvalidInput         = errors.New("invalid input")
	ErrCollaboratorDisabled = errors.New("collaborator not configured")
)

// Error is an operation failure of a given kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Is matches the kind, so errors.Is(err, ErrRateLimited) works on wrapped errors.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns an *Error of kind for op. A nil err yields a bare kind error.
func Wrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// New returns an *Error of kind for op without a cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Transcription sub-kinds also match ErrTranscriptionFailed.
var (
	errRateLimitedTranscription = fmt.Errorf("%w: %w", ErrTranscriptionFailed, ErrRateLimited)
	errQuotaTranscription       = fmt.Errorf("%w: %w", ErrTranscriptionFailed, ErrQuotaExhausted)
)

// TranscriptionKind returns the kind for a transcription failure. Rate
// limiting and quota exhaustion match both their own sentinel and
// ErrTranscriptionFailed.
func TranscriptionKind(cause error) error {
	switch {
	case errors.Is(cause, ErrRateLimited):
		return errRateLimitedTranscription
	case errors.Is(cause, ErrQuotaExhausted):
		return errQuotaTranscription
	default:
		return ErrTranscriptionFailed
	}
}

// KindName returns a stable short name for metrics and wire payloads.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrHardwareUnavailable):
		return "hardware_unavailable"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrAIProcessingFailed):
		return "ai_processing_failed"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrCollaboratorDisabled):
		return "disabled"
	default:
		return "other"
	}
}

// UserMessage maps err to the message shown to the student.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded. Please wait and try again."
	case errors.Is(err, ErrQuotaExhausted) && errors.Is(err, ErrTranscriptionFailed):
		return "Transcription credits exhausted. Please contact support."
	case errors.Is(err, ErrQuotaExhausted):
		return "AI credits exhausted. Please contact support."
	case errors.Is(err, ErrPermissionDenied):
		return "Access was denied. Please allow camera or microphone access and try again."
	case errors.Is(err, ErrUnsupported):
		return "This feature is not supported on this device."
	case errors.Is(err, ErrHardwareUnavailable):
		return "The camera or microphone is not available right now."
	case errors.Is(err, ErrTranscriptionFailed):
		return "Failed to transcribe audio. Please try again."
	case errors.Is(err, ErrAIProcessingFailed):
		return "Failed to process text. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
