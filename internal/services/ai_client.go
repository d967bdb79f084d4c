package services

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

type IAIClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

const (
	defaultGeminiModel     = "gemini-2.5-flash"
	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 2048
	geminiProvider         = "gemini"
)

type GeminiAIClient struct {
	client  *genai.Client
	tracker IUsageTracker
	model   string
}
type GeminiAIClientFuncOptions = func(client *GeminiAIClient) error

func NewGeminiAIClient(ctx context.Context, apiKey string, opts ...GeminiAIClientFuncOptions) (*GeminiAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	geminiai := GeminiAIClient{
		client: client,
		model:  defaultGeminiModel,
	}
	err = applyFuncOptions(&geminiai, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	return &geminiai, nil
}

func WithModel(model string) GeminiAIClientFuncOptions {
	return func(client *GeminiAIClient) error {
		if model != "" {
			client.model = model
		}
		return nil
	}
}

func WithUsageTracker(tracker IUsageTracker) GeminiAIClientFuncOptions {
	return func(client *GeminiAIClient) error {
		client.tracker = tracker
		return nil
	}
}

func (g *GeminiAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](defaultTemperature),
		MaxOutputTokens: defaultMaxOutputTokens,
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", asStatusError(geminiProvider, err))
	}
	g.trackUsage(ctx, deref(result.UsageMetadata))

	return result.Text(), nil
}

func (g *GeminiAIClient) trackUsage(ctx context.Context, um genai.GenerateContentResponseUsageMetadata) {
	if g.tracker == nil {
		return
	}
	tknIn := um.PromptTokenCount
	tknOut := um.TotalTokenCount - tknIn
	g.tracker.AddTokens(ctx, int(tknIn), int(tknOut))
}

// asStatusError lifts the provider's API error into a StatusError so retry
// classification does not depend on the SDK type.
func asStatusError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: provider, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Provider: provider, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return err
}
