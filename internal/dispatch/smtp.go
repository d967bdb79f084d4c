package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

const DefaultFrom = `"AutoFlow" <no-reply@autoflow.com>`

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPTransport delivers email through an authenticated SMTP relay. A client
// is dialed per message so concurrent workers never share a connection.
type SMTPTransport struct {
	host string
	from string
	opts []mail.Option
}

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from := cfg.From
	if from == "" {
		from = DefaultFrom
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(timeout),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPTransport{host: cfg.Host, from: from, opts: opts}, nil
}

func (s *SMTPTransport) Send(ctx context.Context, to, subject, body string) (SendReceipt, error) {
	msg, id, err := s.buildMessage(to, subject, body)
	if err != nil {
		return SendReceipt{}, err
	}

	client, err := mail.NewClient(s.host, s.opts...)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return SendReceipt{}, fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return SendReceipt{MessageID: id}, nil
}

func (s *SMTPTransport) buildMessage(to, subject, body string) (*mail.Msg, string, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, "", fmt.Errorf("invalid from address %q: %w", s.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	id := uuid.New().String()
	msg.SetGenHeader(mail.HeaderMessageID, fmt.Sprintf("<%s@autoflow>", id))
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, id, nil
}
