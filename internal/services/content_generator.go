package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/cenkalti/backoff/v5"
)

const (
	defaultGenerationTimeout = 15 * time.Second
	defaultMaxRetries        = 2
	defaultRetryInterval     = 500 * time.Millisecond
	connectionTestTimeout    = 10 * time.Second
	connectionTestPrompt     = `Say "AI is working!" in exactly those words.`
)

var (
	subjectPattern = regexp.MustCompile(`"subject"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	bodyPattern    = regexp.MustCompile(`"body"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	unescaper      = strings.NewReplacer(`\"`, `"`, `\n`, "\n")
)

type GenerationRequest struct {
	RecipientName     string
	WorkflowType      string
	Balance           string
	Tone              string
	AdditionalContext string
}

func (r GenerationRequest) withDefaults() GenerationRequest {
	if strings.TrimSpace(r.Balance) == "" {
		r.Balance = DefaultBalance
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = DefaultTone
	}
	return r
}

type GeneratedContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type IContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GeneratedContent, error)
	Configured() bool
}

// ContentGenerator turns one record's data into an email subject and body.
// Every call is independent of every other call.
type ContentGenerator struct {
	client        IAIClient
	prompts       IContentPromptBuilder
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
}

type ContentGeneratorOption = func(*ContentGenerator) error

// NewContentGenerator accepts a nil client; Generate then reports
// ErrNoCredential.
func NewContentGenerator(client IAIClient, opts ...ContentGeneratorOption) (*ContentGenerator, error) {
	g := &ContentGenerator{
		client:        client,
		prompts:       NewContentPromptBuilder(),
		timeout:       defaultGenerationTimeout,
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}
	if err := applyFuncOptions(g, opts...); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	return g, nil
}

func WithTimeout(timeout time.Duration) ContentGeneratorOption {
	return func(g *ContentGenerator) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		g.timeout = timeout
		return nil
	}
}

func WithMaxRetries(n int) ContentGeneratorOption {
	return func(g *ContentGenerator) error {
		if n < 0 {
			return fmt.Errorf("max retries must not be negative, got %d", n)
		}
		g.maxRetries = n
		return nil
	}
}

func WithRetryInterval(d time.Duration) ContentGeneratorOption {
	return func(g *ContentGenerator) error {
		g.retryInterval = d
		return nil
	}
}

func WithPromptBuilder(b IContentPromptBuilder) ContentGeneratorOption {
	return func(g *ContentGenerator) error {
		g.prompts = b
		return nil
	}
}

func (g *ContentGenerator) Configured() bool {
	return g.client != nil
}

func (g *ContentGenerator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedContent, error) {
	if g.client == nil {
		return nil, ErrNoCredential
	}

	prompt := g.prompts.Build(req)

	text, err := backoff.Retry(ctx, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.client.GenerateContent(callCtx, prompt)
		if err == nil {
			return text, nil
		}
		if isTransient(err) {
			logger.Log.Debug("transient generation error, retrying", "error", err)
			return "", err
		}
		return "", backoff.Permanent(err)
	}, backoff.WithBackOff(g.newBackOff()), backoff.WithMaxTries(uint(g.maxRetries+1)))
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return nil, err
		}
		return nil, &GenerationFailure{Reason: "provider request failed", Err: err}
	}

	content, err := parseGeneratedContent(text)
	if err != nil {
		logger.Log.Warn("unparseable generation response", "response", truncate(text, 200), "error", err)
		return nil, err
	}
	return content, nil
}

func (g *ContentGenerator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval
	b.MaxInterval = g.timeout
	return b
}

// TestConnection sends a fixed probe prompt and returns the raw reply.
func (g *ContentGenerator) TestConnection(ctx context.Context) (string, error) {
	if g.client == nil {
		return "", ErrNoCredential
	}
	ctx, cancel := context.WithTimeout(ctx, connectionTestTimeout)
	defer cancel()
	return g.client.GenerateContent(ctx, connectionTestPrompt)
}

// parseGeneratedContent tries a strict JSON decode after stripping code fences,
// then falls back to pulling the two string literals out with a regexp.
func parseGeneratedContent(text string) (*GeneratedContent, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &GenerationFailure{Reason: "empty response"}
	}
	if strings.Trim(trimmed, `"`) == InsufficientDataReply {
		return nil, &GenerationFailure{Reason: "model reported insufficient data"}
	}

	var content GeneratedContent
	if err := json.Unmarshal([]byte(cleanJSONMarkdown(trimmed)), &content); err == nil && content.valid() {
		return content.trimmed(), nil
	}

	subject := subjectPattern.FindStringSubmatch(trimmed)
	body := bodyPattern.FindStringSubmatch(trimmed)
	if subject != nil && body != nil {
		content = GeneratedContent{
			Subject: unescaper.Replace(subject[1]),
			Body:    unescaper.Replace(body[1]),
		}
		if content.valid() {
			return content.trimmed(), nil
		}
	}

	return nil, &GenerationFailure{Reason: "failed to extract valid JSON from AI response"}
}

func (c GeneratedContent) valid() bool {
	return strings.TrimSpace(c.Subject) != "" && strings.TrimSpace(c.Body) != ""
}

func (c GeneratedContent) trimmed() *GeneratedContent {
	return &GeneratedContent{
		Subject: strings.TrimSpace(c.Subject),
		Body:    strings.TrimSpace(c.Body),
	}
}
