// Package dispatch delivers generated content to a recipient over the first
// selected channel that applies.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/models"
)

var (
	ErrNoContent = errors.New("record has no generated content")
	ErrNoChannel = errors.New("no delivery channel selected")
	ErrNoAddress = errors.New("recipient has no address for channel")
)

type SendReceipt struct {
	MessageID string
}

// Transport sends one message on one channel.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) (SendReceipt, error)
}

type Result struct {
	Stage     models.RecordStage
	Channel   models.Channel
	Recipient string
	Simulated bool
	MessageID string
	Err       error
}

type Dispatcher struct {
	transports map[models.Channel]Transport
}

type Option func(*Dispatcher)

// WithTransport registers the live transport for a channel. Channels without
// one are delivered in simulation mode.
func WithTransport(ch models.Channel, t Transport) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.transports[ch] = t
		}
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{transports: make(map[models.Channel]Transport)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Simulated reports whether sends on ch are only logged.
func (d *Dispatcher) Simulated(ch models.Channel) bool {
	_, ok := d.transports[ch]
	return !ok
}

// Dispatch never returns an error; every outcome is encoded in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.CanonicalRecord, channels models.Channels) Result {
	if !rec.HasContent() {
		return Result{Stage: models.StageDeliveryFailed, Err: ErrNoContent}
	}

	selected := channels.Selected()
	if len(selected) == 0 {
		return Result{Stage: models.StageSkipped, Err: ErrNoChannel}
	}
	ch := selected[0]

	to := rec.Address(ch)
	if to == "" {
		return Result{
			Stage:   models.StageSkipped,
			Channel: ch,
			Err:     fmt.Errorf("%w %s", ErrNoAddress, ch.DisplayName()),
		}
	}

	t, ok := d.transports[ch]
	if !ok {
		logger.Log.Warn("simulated delivery, no transport configured",
			"channel", ch, "to", to, "subject", rec.Subject)
		return Result{Stage: models.StageSent, Channel: ch, Recipient: to, Simulated: true}
	}

	receipt, err := t.Send(ctx, to, rec.Subject, rec.Body)
	if err != nil {
		logger.Log.Error("delivery failed", "channel", ch, "to", to, "error", err)
		return Result{Stage: models.StageDeliveryFailed, Channel: ch, Recipient: to, Err: err}
	}
	return Result{Stage: models.StageSent, Channel: ch, Recipient: to, MessageID: receipt.MessageID}
}
