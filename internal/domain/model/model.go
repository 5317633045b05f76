// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/classvoice/internal/domain/emotion"
)

// Session is one continuous use of a student interface.
// EndedAt and DurationSeconds stay nil until the session is closed.
type Session struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	LanguageCode    string     `json:"language_code"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int       `json:"session_duration,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s Session) Open() bool { return s.EndedAt == nil }

// ContextTag is the coarse activity attached to an emotion event.
type ContextTag string

const (
	ContextSpeaking ContextTag = "speaking"
	ContextIdle     ContextTag = "idle"
)

// EmotionEvent is an append-only emotion sample bound to a session.
type EmotionEvent struct {
	ID         string        `json:"id"`
	StudentID  string        `json:"student_id"`
	SessionID  string        `json:"session_id"`
	Label      emotion.Label `json:"emotion_type"`
	Confidence float64       `json:"confidence_score"`
	Context    ContextTag    `json:"context"`
	DetectedAt time.Time     `json:"detected_at"`
}

// MessageType distinguishes how a message was produced.
type MessageType string

const (
	MessageSpeech MessageType = "speech"
	MessageText   MessageType = "text"
	MessageSymbol MessageType = "symbol"
)

// Message is a communication message sent by a student during a session.
type Message struct {
	ID             string      `json:"id"`
	StudentID      string      `json:"student_id"`
	SessionID      string      `json:"session_id,omitempty"`
	Type           MessageType `json:"message_type"`
	OriginalText   string      `json:"original_text"`
	SimplifiedText string      `json:"simplified_text,omitempty"`
	TranslatedText string      `json:"translated_text,omitempty"`
	LanguageCode   string      `json:"language_code"`
	Symbol         *SymbolCard `json:"visual_card_data,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SymbolCard is a visual communication card.
type SymbolCard struct {
	Emoji    string `json:"emoji" yaml:"emoji"`
	Label    string `json:"label" yaml:"label"`
	Category string `json:"category" yaml:"category"`
}
