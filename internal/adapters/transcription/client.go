// Package transcription is the HTTP client for the speech-to-text
// collaborator.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/classvoice/internal/audio"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/metrics"
)

const maxErrorBody = 4 << 10

// Client posts clips as JSON and returns the transcript.
type Client struct {
	url    string
	apiKey string
	hc     *http.Client
}

// New creates a client for the transcription endpoint url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url: url,
		hc:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mimeType"`
}

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// StatusError is a non-2xx answer from the collaborator.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcription %d", e.Code)
	}
	return fmt.Sprintf("transcription %d: %s", e.Code, e.Message)
}

// Transcribe sends clip and returns its text. Errors are classified as
// rate limited, quota exhausted or transcription failed.
func (c *Client) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	const op = "transcription.Transcribe"

	b, err := json.Marshal(transcribeRequest{Audio: clip.AudioBase64, MIMEType: clip.MIMEType})
	if err != nil {
		return "", failure.Wrap(op, failure.ErrTranscriptionFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", failure.Wrap(op, failure.ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", failure.Wrap(op, failure.ErrTranscriptionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordTranscriptionLatency(float64(time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
		return "", failure.Wrap(op, classify(serr), serr)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", failure.Wrap(op, failure.ErrTranscriptionFailed, fmt.Errorf("decode: %w", err))
	}
	if out.Error != "" {
		serr := &StatusError{Code: resp.StatusCode, Message: out.Error}
		return "", failure.Wrap(op, classify(serr), serr)
	}
	return out.Text, nil
}

func classify(e *StatusError) error {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Code == http.StatusTooManyRequests || strings.Contains(msg, "rate limit"):
		return failure.ErrRateLimited
	case e.Code == http.StatusPaymentRequired || strings.Contains(msg, "payment required"):
		return failure.ErrQuotaExhausted
	default:
		return failure.ErrTranscriptionFailed
	}
}

// errorMessage extracts the "error" field of a JSON body, or the raw body.
func errorMessage(body []byte) string {
	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}
