// Package delivery executes routing decisions.
//
// A Forwarder hands a raw message to one recipient over some transport (SMTP
// relay, Amazon SES or stdout). The Executor applies a ResolvedAction to an
// inbound message, and the Fallback takes over when processing fails.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/emersion/go-smtp"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
)

// Forwarder delivers a raw message to a single recipient.
type Forwarder interface {
	Forward(ctx context.Context, from, to string, raw []byte) error
	// Name is the transport label used in logs and metrics.
	Name() string
}

// ErrNoTransport indicates a delivery config naming no known transport.
var ErrNoTransport = errors.New("unknown delivery transport")

// New builds the Forwarder selected by cfg.Transport.
// out receives messages for the stdout transport.
func New(ctx context.Context, cfg config.DeliveryConfig, out io.Writer) (Forwarder, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		return NewSMTPRelay(cfg.Relay.Addr, cfg.Relay.HELO), nil
	case config.TransportSES:
		return NewSES(ctx, cfg.SES)
	case config.TransportStdout:
		return NewStdout(out), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, cfg.Transport)
	}
}

// IsPermanent reports whether err is a delivery failure that will not go away
// on retry: a 5xx SMTP reply or an SES rejection.
// Network errors and 4xx replies are temporary.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return !smtpErr.Temporary()
	}

	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return true
	}
	var unverified *types.MailFromDomainNotVerifiedException
	return errors.As(err, &unverified)
}
