package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqAIClientGenerateContent(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"subject\":\"s\",\"body\":\"b\"}"}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	tracker := NewUsageTracker()
	client, err := NewGroqAIClient("secret", WithGroqEndpoint(srv.URL), WithGroqUsageTracker(tracker))
	require.NoError(t, err)

	ctx := ContextWithRunID(context.Background(), "run-1")
	text, err := client.GenerateContent(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, `{"subject":"s","body":"b"}`, text)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, defaultGroqModel, gotBody["model"])
	assert.Equal(t, Usage{TokensIn: 12, TokensOut: 5, Calls: 1}, tracker.RunUsage("run-1"))
}

func TestGroqAIClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewGroqAIClient("secret", WithGroqEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "hello")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, isTransient(err))
}

func TestGroqAIClientRequiresKey(t *testing.T) {
	_, err := NewGroqAIClient("")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestUsageTrackerWithoutRunID(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.AddTokens(context.Background(), 3, 4)
	tracker.AddTokens(ContextWithRunID(context.Background(), "r"), 1, 1)

	assert.Equal(t, Usage{TokensIn: 4, TokensOut: 5, Calls: 2}, tracker.Total())
	assert.Equal(t, Usage{TokensIn: 1, TokensOut: 1, Calls: 1}, tracker.RunUsage("r"))

	tracker.Forget("r")
	assert.Equal(t, Usage{}, tracker.RunUsage("r"))
}
