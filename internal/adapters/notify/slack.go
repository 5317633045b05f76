package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/metrics"
)

// SlackSink posts an incoming-webhook alert when a student shows a
// concerning emotion, at most once per cooldown per student.
type SlackSink struct {
	webhookURL string
	cooldown   time.Duration
	now        func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSlackSink creates an alert sink for webhookURL.
func NewSlackSink(webhookURL string, cooldown time.Duration, opts ...SlackOption) *SlackSink {
	s := &SlackSink{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		now:        time.Now,
		last:       map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the sink in logs.
func (s *SlackSink) Name() string { return "slack" }

// Notify alerts on concerning emotions and ignores everything else.
func (s *SlackSink) Notify(ctx context.Context, e model.EmotionEvent) error {
	if !emotion.IsConcerning(e.Label) {
		return nil
	}
	if !s.claim(e.StudentID) {
		return nil
	}

	label := string(e.Label)
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("Student %s may need attention: %s", e.StudentID, label),
		Attachments: []slack.Attachment{{
			Color: "warning",
			Fields: []slack.AttachmentField{
				{Title: "Emotion", Value: strings.ToUpper(label[:1]) + label[1:], Short: true},
				{Title: "Confidence", Value: fmt.Sprintf("%.0f%%", e.Confidence*100), Short: true},
				{Title: "Context", Value: string(e.Context), Short: true},
				{Title: "Detected", Value: e.DetectedAt.UTC().Format(time.RFC3339), Short: true},
			},
		}},
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		s.release(e.StudentID)
		return fmt.Errorf("slack webhook: %w", err)
	}
	metrics.RecordAlertSent()
	return nil
}

// claim reserves the alert slot for a student if the cooldown has passed.
func (s *SlackSink) claim(studentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.last[studentID]; ok && now.Sub(at) < s.cooldown {
		return false
	}
	s.last[studentID] = now
	return true
}

func (s *SlackSink) release(studentID string) {
	s.mu.Lock()
	delete(s.last, studentID)
	s.mu.Unlock()
}
