package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, body string) (SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return SendReceipt{}, f.err
	}
	f.sent = append(f.sent, to)
	return SendReceipt{MessageID: "m-1"}, nil
}

func generatedRecord(email, phone string) *models.CanonicalRecord {
	return &models.CanonicalRecord{
		Name:    "Alice",
		Email:   email,
		Phone:   phone,
		Subject: "Fee reminder",
		Body:    "Please pay. AutoFlow Team",
		Stage:   models.StageContentGenerated,
	}
}

func TestDispatch(t *testing.T) {
	emailOnly := models.Channels{models.ChannelEmail: true}
	both := models.Channels{models.ChannelEmail: true, models.ChannelWhatsApp: true}
	whatsappOnly := models.Channels{models.ChannelWhatsApp: true}

	tests := []struct {
		name          string
		record        *models.CanonicalRecord
		channels      models.Channels
		emailErr      error
		wantStage     models.RecordStage
		wantChannel   models.Channel
		wantRecipient string
		wantErr       error
	}{
		{
			name:          "email delivered",
			record:        generatedRecord("a@example.com", ""),
			channels:      emailOnly,
			wantStage:     models.StageSent,
			wantChannel:   models.ChannelEmail,
			wantRecipient: "a@example.com",
		},
		{
			name:        "no email address is skipped",
			record:      generatedRecord("  ", "+1555"),
			channels:    emailOnly,
			wantStage:   models.StageSkipped,
			wantChannel: models.ChannelEmail,
			wantErr:     ErrNoAddress,
		},
		{
			name:      "no channel selected",
			record:    generatedRecord("a@example.com", ""),
			channels:  models.Channels{},
			wantStage: models.StageSkipped,
			wantErr:   ErrNoChannel,
		},
		{
			name:          "email has priority over whatsapp",
			record:        generatedRecord("a@example.com", "+1555"),
			channels:      both,
			wantStage:     models.StageSent,
			wantChannel:   models.ChannelEmail,
			wantRecipient: "a@example.com",
		},
		{
			name:          "transport failure",
			record:        generatedRecord("a@example.com", ""),
			channels:      emailOnly,
			emailErr:      errors.New("550 mailbox unavailable"),
			wantStage:     models.StageDeliveryFailed,
			wantChannel:   models.ChannelEmail,
			wantRecipient: "a@example.com",
		},
		{
			name:          "whatsapp uses phone",
			record:        generatedRecord("", "+1555"),
			channels:      whatsappOnly,
			wantStage:     models.StageSent,
			wantChannel:   models.ChannelWhatsApp,
			wantRecipient: "+1555",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &fakeTransport{err: tt.emailErr}
			whatsapp := &fakeTransport{}
			d := NewDispatcher(
				WithTransport(models.ChannelEmail, email),
				WithTransport(models.ChannelWhatsApp, whatsapp),
			)

			res := d.Dispatch(context.Background(), tt.record, tt.channels)
			assert.Equal(t, tt.wantStage, res.Stage)
			assert.Equal(t, tt.wantChannel, res.Channel)
			assert.Equal(t, tt.wantRecipient, res.Recipient)
			assert.False(t, res.Simulated)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
			if tt.emailErr != nil {
				assert.ErrorIs(t, res.Err, tt.emailErr)
			}
		})
	}
}

func TestDispatchSimulated(t *testing.T) {
	d := NewDispatcher()
	assert.True(t, d.Simulated(models.ChannelEmail))

	res := d.Dispatch(context.Background(), generatedRecord("a@example.com", ""), models.Channels{models.ChannelEmail: true})
	assert.Equal(t, models.StageSent, res.Stage)
	assert.True(t, res.Simulated)
	assert.NoError(t, res.Err)
}

func TestDispatchRefusesRecordWithoutContent(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(WithTransport(models.ChannelEmail, transport))

	rec := generatedRecord("a@example.com", "")
	rec.Body = ""
	res := d.Dispatch(context.Background(), rec, models.Channels{models.ChannelEmail: true})
	assert.ErrorIs(t, res.Err, ErrNoContent)
	assert.Empty(t, transport.sent)
}

func TestWebhookTransport(t *testing.T) {
	var gotSecret string
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"wa-42"}`))
	}))
	defer srv.Close()

	wt := NewWebhookTransport(srv.URL, "s3cret", "whatsapp")
	receipt, err := wt.Send(context.Background(), "+1555", "Hi", "Body")
	require.NoError(t, err)

	assert.Equal(t, "wa-42", receipt.MessageID)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, webhookPayload{Channel: "whatsapp", To: "+1555", Subject: "Hi", Message: "Body"}, got)
}

func TestWebhookTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWebhookTransport(srv.URL, "", "whatsapp").Send(context.Background(), "+1555", "Hi", "Body")
	assert.ErrorContains(t, err, "status 401")
}

func TestSMTPTransportBuildMessage(t *testing.T) {
	_, err := NewSMTPTransport(SMTPConfig{})
	assert.Error(t, err)

	st, err := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFrom, st.from)

	msg, id, err := st.buildMessage("alice@example.com", "Hi", "Body")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, rcpts)

	_, _, err = st.buildMessage("not an address", "Hi", "Body")
	assert.Error(t, err)
}
