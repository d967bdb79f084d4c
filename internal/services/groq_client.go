package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	groqProvider       = "groq"
	defaultGroqModel   = "openai/gpt-oss-20b"
	defaultGroqBaseURL = "https://api.groq.com/openai/v1/chat/completions"
)

// GroqAIClient talks to Groq's OpenAI compatible chat completions endpoint.
type GroqAIClient struct {
	apiKey     string
	httpClient *http.Client
	model      string
	endpoint   string
	tracker    IUsageTracker
}

type GroqAIClientFuncOptions = func(client *GroqAIClient) error

func NewGroqAIClient(apiKey string, opts ...GroqAIClientFuncOptions) (*GroqAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	g := &GroqAIClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		model:    defaultGroqModel,
		endpoint: defaultGroqBaseURL,
	}
	if err := applyFuncOptions(g, opts...); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	return g, nil
}

func WithGroqModel(model string) GroqAIClientFuncOptions {
	return func(client *GroqAIClient) error {
		if model != "" {
			client.model = model
		}
		return nil
	}
}

func WithGroqEndpoint(endpoint string) GroqAIClientFuncOptions {
	return func(client *GroqAIClient) error {
		client.endpoint = endpoint
		return nil
	}
}

func WithGroqUsageTracker(tracker IUsageTracker) GroqAIClientFuncOptions {
	return func(client *GroqAIClient) error {
		client.tracker = tracker
		return nil
	}
}

func WithGroqHTTPClient(httpClient *http.Client) GroqAIClientFuncOptions {
	return func(client *GroqAIClient) error {
		client.httpClient = httpClient
		return nil
	}
}

func (g *GroqAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature":           defaultTemperature,
		"max_completion_tokens": defaultMaxOutputTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: groqProvider, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var groqResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if g.tracker != nil {
		g.tracker.AddTokens(ctx, groqResp.Usage.PromptTokens, groqResp.Usage.CompletionTokens)
	}

	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return groqResp.Choices[0].Message.Content, nil
}
