// Package inference is the HTTP client for the facial-expression model
// server. It implements sampler.Detector.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/internal/domain/emotion"
)

// Client talks to the model server at baseURL.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectRequest struct {
	Image  string `json:"image"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type detectResponse struct {
	FaceDetected bool               `json:"face_detected"`
	Expressions  map[string]float64 `json:"expressions"`
}

// Load waits for the server to report its models ready.
func (c *Client) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrNotReady, resp.Status)
	}
	return nil
}

// Detect sends one frame. It returns nil scores when no face was found.
func (c *Client) Detect(ctx context.Context, f device.Frame) (*emotion.Scores, error) {
	if len(f.Data) == 0 {
		return nil, ErrEmptyFrame
	}
	b, err := json.Marshal(detectRequest{
		Image:  base64.StdEncoding.EncodeToString(f.Data),
		Format: f.Format,
		Width:  f.Width,
		Height: f.Height,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("detect %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect decode: %w", err)
	}
	if !out.FaceDetected {
		return nil, nil
	}
	scores := emotion.FromMap(out.Expressions)
	if err := scores.Validate(); err != nil {
		return nil, err
	}
	return &scores, nil
}
