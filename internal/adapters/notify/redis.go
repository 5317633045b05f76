package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/classvoice/internal/domain/model"
)

// Publisher is the subset of *redis.Client used for realtime events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each event on "<prefix>:student:<student id>".
type RedisSink struct {
	pub    Publisher
	prefix string
}

// NewRedisSink creates a sink over pub.
func NewRedisSink(pub Publisher, prefix string) *RedisSink {
	return &RedisSink{pub: pub, prefix: prefix}
}

// NewRedisClient dials addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Name identifies the sink in logs.
func (s *RedisSink) Name() string { return "redis" }

// Channel returns the channel for a student.
func (s *RedisSink) Channel(studentID string) string {
	return s.prefix + ":student:" + studentID
}

type eventPayload struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	SessionID       string  `json:"session_id"`
	EmotionType     string  `json:"emotion_type"`
	ConfidenceScore float64 `json:"confidence_score"`
	Context         string  `json:"context"`
	DetectedAt      string  `json:"detected_at"`
}

// Notify publishes e as JSON.
func (s *RedisSink) Notify(ctx context.Context, e model.EmotionEvent) error {
	b, err := json.Marshal(eventPayload{
		ID:              e.ID,
		StudentID:       e.StudentID,
		SessionID:       e.SessionID,
		EmotionType:     string(e.Label),
		ConfidenceScore: e.Confidence,
		Context:         string(e.Context),
		DetectedAt:      e.DetectedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.pub.Publish(ctx, s.Channel(e.StudentID), b).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
