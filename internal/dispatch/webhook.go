package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookTransport hands messages to an automation webhook (n8n style) that
// performs the actual channel delivery.
type WebhookTransport struct {
	url        string
	secret     string
	channel    string
	httpClient *http.Client
}

func NewWebhookTransport(url, secret, channel string) *WebhookTransport {
	return &WebhookTransport{
		url:     url,
		secret:  secret,
		channel: channel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type webhookPayload struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (w *WebhookTransport) Send(ctx context.Context, to, subject, body string) (SendReceipt, error) {
	jsonData, err := json.Marshal(webhookPayload{
		Channel: w.channel,
		To:      to,
		Subject: subject,
		Message: body,
	})
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Webhook-Secret", w.secret)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to execute webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return SendReceipt{}, fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(b))
	}

	var ack struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&ack)
	return SendReceipt{MessageID: ack.ID}, nil
}
