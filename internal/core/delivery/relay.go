package delivery

import (
	"context"
	"fmt"

	"github.com/emersion/go-smtp"
)

// SMTPRelay forwards messages through an SMTP relay without authentication.
// The relay is expected to sit on a trusted network (a local MTA or smarthost).
type SMTPRelay struct {
	addr string
	helo string
}

// NewSMTPRelay returns a relay forwarder for host:port addr.
// An empty helo uses "localhost".
func NewSMTPRelay(addr, helo string) *SMTPRelay {
	if helo == "" {
		helo = "localhost"
	}
	return &SMTPRelay{addr: addr, helo: helo}
}

// Name implements Forwarder.
func (r *SMTPRelay) Name() string { return "smtp" }

// Forward opens one connection per message and sends raw to to with the
// envelope sender from.
func (r *SMTPRelay) Forward(ctx context.Context, from, to string, raw []byte) error {
	if r.addr == "" {
		return fmt.Errorf("SMTP relay address not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := smtp.Dial(r.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay %s: %w", r.addr, err)
	}
	defer c.Close()

	if err := c.Hello(r.helo); err != nil {
		return fmt.Errorf("HELO rejected: %w", err)
	}
	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("relay refused message: %w", err)
	}

	// The message is accepted once DATA completes; a failed QUIT changes nothing.
	_ = c.Quit()
	return nil
}
