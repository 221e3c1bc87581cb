package mailinglist

import (
	"bytes"
	"context"
	"fmt"

	"github.com/emersion/go-smtp"

	"github.com/bkyoung/review-bridge/internal/mail"
)

// SMTPSender submits mail through an SMTP relay.
type SMTPSender struct {
	// Addr is the relay's host:port.
	Addr string
}

// NewSMTPSender constructs a sender for the given relay.
func NewSMTPSender(addr string) *SMTPSender {
	return &SMTPSender{Addr: addr}
}

// Send composes the message and hands it to the relay.
func (s *SMTPSender) Send(ctx context.Context, msg *mail.Message) error {
	raw, err := msg.Compose()
	if err != nil {
		return err
	}
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, to.Email)
	}
	if err := smtp.SendMail(s.Addr, nil, msg.From.Email, recipients, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp submit to %s: %w", s.Addr, err)
	}
	return nil
}
