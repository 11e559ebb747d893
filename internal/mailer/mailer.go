// Package mailer delivers queued emails through the configured SMTP relay.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/artisan-hosting/mailing-server/internal/config"
	"github.com/artisan-hosting/mailing-server/internal/protocol"
)

// Sender delivers a single email. Implementations must be safe for
// sequential reuse; the dispatcher calls Send one message at a time.
type Sender interface {
	Send(ctx context.Context, email protocol.Email) error
}

// SMTPSender implements Sender against an SMTP relay with plain
// authentication over TLS. Recipient and sender addresses are fixed by
// configuration; intake clients only control subject and body.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg config.SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}
}

// Send builds and delivers one message. Each call dials the relay and
// closes the connection; the dispatch rate is low enough that holding a
// session open buys nothing.
func (s *SMTPSender) Send(ctx context.Context, email protocol.Email) error {
	msg := mail.NewMsg()
	if err := msg.To(s.cfg.To); err != nil {
		return fmt.Errorf("mailer: recipient %q: %w", s.cfg.To, err)
	}
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("mailer: sender %q: %w", s.cfg.From, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)

	client, err := mail.NewClient(s.cfg.Server,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("mailer: create client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}

	s.logger.Info("email sent", "subject", email.Subject, "to", s.cfg.To)
	return nil
}
