package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
	"github.com/okian/classvoice/internal/adapters/textai"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/logger"
)

// Client commands.
const (
	CmdDetectionStart = "detection.start"
	CmdDetectionStop  = "detection.stop"
	CmdRecordingStart = "recording.start"
	CmdRecordingStop  = "recording.stop"
	CmdSpeak          = "speak"
	CmdSpeechStop     = "speech.stop"
	CmdMessageText    = "message.text"
	CmdMessageSymbol  = "message.symbol"
	CmdTextProcess    = "text.process"
)

// SpeakRequest is the payload of a speak command.
type SpeakRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

// TextMessageRequest is the payload of a message.text command. Simplify and
// TranslateTo run through the text-AI collaborator before the message is
// logged.
type TextMessageRequest struct {
	Text        string `json:"text"`
	Simplify    bool   `json:"simplify,omitempty"`
	TranslateTo string `json:"translate_to,omitempty"`
}

// SymbolMessageRequest is the payload of a message.symbol command.
type SymbolMessageRequest struct {
	Label string `json:"label"`
	Speak bool   `json:"speak,omitempty"`
}

// TranscriptResult answers recording.stop.
type TranscriptResult struct {
	Text    string         `json:"text"`
	Message *model.Message `json:"message,omitempty"`
}

func (in *Interface) handle(ctx context.Context, cmd devicebridge.Envelope) (any, error) {
	switch cmd.Type {
	case CmdDetectionStart:
		if in.sampler == nil {
			return nil, failure.New("interface.detection", failure.ErrCollaboratorDisabled)
		}
		if err := in.sampler.StartDetection(ctx); err != nil {
			return nil, err
		}
		in.pushState()
		return in.State(), nil

	case CmdDetectionStop:
		if in.sampler != nil {
			in.sampler.StopDetection()
		}
		in.pushState()
		return in.State(), nil

	case CmdRecordingStart:
		if in.audio == nil {
			return nil, failure.New("interface.recording", failure.ErrCollaboratorDisabled)
		}
		if err := in.audio.StartRecording(ctx); err != nil {
			return nil, invalid("interface.recording", err)
		}
		return in.State(), nil

	case CmdRecordingStop:
		if in.audio == nil {
			return nil, failure.New("interface.recording", failure.ErrCollaboratorDisabled)
		}
		return in.stopRecording(ctx)

	case CmdSpeak:
		var req SpeakRequest
		if err := decode(cmd, &req); err != nil {
			return nil, err
		}
		id, err := in.speech.Speak(ctx, req.Text, req.Lang)
		if err != nil {
			return nil, invalid("interface.speak", err)
		}
		return map[string]string{"id": id}, nil

	case CmdSpeechStop:
		in.speech.Stop()
		return in.State(), nil

	case CmdMessageText:
		var req TextMessageRequest
		if err := decode(cmd, &req); err != nil {
			return nil, err
		}
		return in.sendText(ctx, req)

	case CmdMessageSymbol:
		var req SymbolMessageRequest
		if err := decode(cmd, &req); err != nil {
			return nil, err
		}
		return in.sendSymbol(ctx, req)

	case CmdTextProcess:
		var req textai.Request
		if err := decode(cmd, &req); err != nil {
			return nil, err
		}
		result, err := in.svc.Process(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]string{"result": result}, nil

	default:
		return nil, failure.Wrap("interface.command", failure.ErrInvalidInput, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type))
	}
}

func (in *Interface) stopRecording(ctx context.Context) (TranscriptResult, error) {
	text, err := in.audio.StopRecording(ctx)
	if err != nil {
		return TranscriptResult{}, invalid("interface.recording", err)
	}
	res := TranscriptResult{Text: text}
	if strings.TrimSpace(text) == "" {
		return res, nil
	}
	m, err := in.recorder.LogMessage(ctx, model.Message{
		StudentID:    in.studentID,
		Type:         model.MessageSpeech,
		OriginalText: text,
		LanguageCode: in.language,
	})
	if err != nil {
		// the transcript is still returned so the student sees it
		in.log.Warn(ctx, "speech message not logged", logger.Error(err))
		return res, nil
	}
	res.Message = &m
	return res, nil
}

func (in *Interface) sendText(ctx context.Context, req TextMessageRequest) (model.Message, error) {
	const op = "interface.message.text"

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return model.Message{}, failure.Wrap(op, failure.ErrInvalidInput, textai.ErrNoText)
	}
	m := model.Message{
		StudentID:    in.studentID,
		Type:         model.MessageText,
		OriginalText: text,
		LanguageCode: in.language,
	}
	if req.Simplify {
		out, err := in.svc.Process(ctx, textai.Request{Text: text, Action: textai.ActionSimplify})
		if err != nil {
			return model.Message{}, err
		}
		m.SimplifiedText = out
	}
	if req.TranslateTo != "" {
		out, err := in.svc.Process(ctx, textai.Request{Text: text, Action: textai.ActionTranslate, TargetLanguage: req.TranslateTo})
		if err != nil {
			return model.Message{}, err
		}
		m.TranslatedText = out
	}
	return in.recorder.LogMessage(ctx, m)
}

func (in *Interface) sendSymbol(ctx context.Context, req SymbolMessageRequest) (model.Message, error) {
	card, err := in.svc.catalog.Lookup(req.Label)
	if err != nil {
		return model.Message{}, failure.Wrap("interface.message.symbol", failure.ErrInvalidInput, err)
	}
	m, err := in.recorder.LogMessage(ctx, model.Message{
		StudentID:    in.studentID,
		Type:         model.MessageSymbol,
		OriginalText: card.Label,
		LanguageCode: in.language,
		Symbol:       &card,
	})
	if err != nil {
		return m, err
	}
	if req.Speak {
		if _, serr := in.speech.Speak(ctx, card.Label, ""); serr != nil {
			in.log.Debug(ctx, "symbol not spoken", logger.Error(serr))
		}
	}
	return m, nil
}

func decode(cmd devicebridge.Envelope, v any) error {
	if len(cmd.Payload) == 0 {
		return failure.Wrap("interface."+cmd.Type, failure.ErrInvalidInput, devicebridge.ErrBadMessage)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return failure.Wrap("interface."+cmd.Type, failure.ErrInvalidInput, err)
	}
	return nil
}

// invalid tags errors that carry no failure kind yet as invalid input.
func invalid(op string, err error) error {
	if failure.KindName(err) != "other" {
		return err
	}
	return failure.Wrap(op, failure.ErrInvalidInput, err)
}
