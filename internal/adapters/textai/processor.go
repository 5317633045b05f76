// Package textai simplifies, translates and summarizes student text with
// Anthropic's Messages API.
package textai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	defaultLanguage  = "Spanish"
)

// Action selects the transformation.
type Action string

const (
	ActionSimplify  Action = "simplify"
	ActionTranslate Action = "translate"
	ActionSummarize Action = "summarize"
)

// Request is one text processing call.
type Request struct {
	Text           string `json:"text"`
	Action         Action `json:"action"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// Processor calls the model with a per-action system prompt.
type Processor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       logger.Logger
}

// New creates a processor authenticated with apiKey.
func New(apiKey string, opts ...Option) *Processor {
	s := settings{
		model:      defaultModel,
		maxTokens:  defaultMaxTokens,
		timeout:    30 * time.Second,
		maxRetries: -1,
	}
	for _, opt := range opts {
		opt(&s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(s.timeout),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(s.maxRetries))
	}

	l := s.logger
	if l == nil {
		l = logger.Get().Named("textai")
	}
	return &Processor{
		client:    anthropic.NewClient(reqOpts...),
		model:     s.model,
		maxTokens: s.maxTokens,
		log:       l,
	}
}

// SystemPrompt returns the instruction for an action.
func SystemPrompt(a Action, targetLanguage string) (string, error) {
	switch a {
	case ActionSimplify:
		return "You are a text simplification assistant. Simplify the following text to make it easier " +
			"to understand for students with learning disabilities. Use simple words, short sentences, " +
			"and clear structure. Return only the simplified text.", nil
	case ActionSummarize:
		return "You are a text summarization assistant. Create a concise summary of the following text, " +
			"focusing on the main points. Keep it brief and clear. Return only the summary.", nil
	case ActionTranslate:
		if strings.TrimSpace(targetLanguage) == "" {
			targetLanguage = defaultLanguage
		}
		return fmt.Sprintf("You are a translation assistant. Translate the following text to %s. "+
			"Return only the translated text, nothing else.", targetLanguage), nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", failure.ErrInvalidInput, a)
	}
}

// Process runs req and returns the model's text.
func (p *Processor) Process(ctx context.Context, req Request) (string, error) {
	const op = "textai.Process"

	if strings.TrimSpace(req.Text) == "" {
		return "", failure.New(op, failure.ErrInvalidInput)
	}
	system, err := SystemPrompt(req.Action, req.TargetLanguage)
	if err != nil {
		return "", failure.Wrap(op, failure.ErrInvalidInput, err)
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)),
		},
	})
	if err != nil {
		kind := classify(err)
		metrics.RecordTextAIRequest(string(req.Action), failure.KindName(failure.New(op, kind)))
		p.log.Error(ctx, "text processing failed", logger.String("action", string(req.Action)), logger.Error(err))
		return "", failure.Wrap(op, kind, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			metrics.RecordTextAIRequest(string(req.Action), "ok")
			return strings.TrimSpace(block.Text), nil
		}
	}
	metrics.RecordTextAIRequest(string(req.Action), "empty")
	return "", failure.Wrap(op, failure.ErrAIProcessingFailed, ErrNoText)
}

// Simplify rewrites text in plain language.
func (p *Processor) Simplify(ctx context.Context, text string) (string, error) {
	return p.Process(ctx, Request{Text: text, Action: ActionSimplify})
}

// Translate translates text into targetLanguage, Spanish when empty.
func (p *Processor) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	return p.Process(ctx, Request{Text: text, Action: ActionTranslate, TargetLanguage: targetLanguage})
}

// Summarize shortens text to its main points.
func (p *Processor) Summarize(ctx context.Context, text string) (string, error) {
	return p.Process(ctx, Request{Text: text, Action: ActionSummarize})
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return failure.ErrAIProcessingFailed
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return failure.ErrRateLimited
	case apiErr.StatusCode == http.StatusPaymentRequired,
		strings.Contains(strings.ToLower(apiErr.Error()), "credit balance"):
		return failure.ErrQuotaExhausted
	default:
		return failure.ErrAIProcessingFailed
	}
}
