// internal/core/server/smtp.go
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
	"github.com/bigcats-cc/email-sieve/internal/core/delivery"
	"github.com/bigcats-cc/email-sieve/internal/core/pipeline"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Mail ingress.
 *
 * Every recipient of a transaction is processed as its own message: the rule
 * engine sees the envelope recipient it was addressed to. In LMTP mode each
 * recipient gets its own DATA reply. SMTP has a single reply per transaction,
 * so it is a rejection only when every recipient was rejected; otherwise the
 * message is accepted and the per-recipient outcomes are logged.
 *
 * A rejection is answered with 550 5.7.1 and the rule's reason. A processing
 * failure is accepted when the fallback forwarded the original message. A
 * permanent delivery failure (5xx from the relay, SES rejection) is answered
 * with 554 5.0.0, any other failure with 451 4.3.0 so the sending MTA retries.
 *
 * In SMTP mode a temporary failure of any recipient fails the whole
 * transaction with 451: the sender retries every recipient, which may
 * duplicate mail for the recipients that were already forwarded but never
 * loses it.
 */

// Replies used by the session.
var (
	errTemporaryFailure = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary processing failure, try again later",
	}
	errPermanentFailure = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 0, 0},
		Message:      "Permanent delivery failure",
	}
	errNoRecipients = &smtp.SMTPError{
		Code:         503,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "Bad sequence of commands (missing RCPT TO)",
	}
)

// rejection builds the reply for a rejected recipient.
func rejection(reason string) *smtp.SMTPError {
	if reason == "" {
		reason = "Message rejected"
	}
	return &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      reason,
	}
}

// Processor handles one inbound message. *pipeline.Processor implements it.
type Processor interface {
	Process(ctx context.Context, in types.Inbound) (pipeline.Result, error)
}

// SMTPServer accepts mail over SMTP or LMTP and hands it to the pipeline.
type SMTPServer struct {
	server *smtp.Server
	logger logrus.FieldLogger
}

// NewSMTPServer configures a listener for cfg.
func NewSMTPServer(cfg config.SMTPConfig, processor Processor, logger logrus.FieldLogger) *SMTPServer {
	be := &Backend{processor: processor, logger: logger}

	s := smtp.NewServer(be)
	s.Addr = cfg.Addr
	s.Domain = cfg.Domain
	s.LMTP = cfg.LMTP
	s.MaxMessageBytes = cfg.MaxMessageBytes
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout

	return &SMTPServer{server: s, logger: logger}
}

// Start listens on the configured address and serves until Shutdown.
func (s *SMTPServer) Start(ctx context.Context) error {
	network := "tcp"
	if s.server.LMTP && len(s.server.Addr) > 0 && s.server.Addr[0] == '/' {
		network = "unix"
	}
	l, err := net.Listen(network, s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	return s.Serve(l)
}

// Serve serves on an existing listener. Returns nil after Shutdown.
func (s *SMTPServer) Serve(l net.Listener) error {
	err := s.server.Serve(l)
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for open sessions.
func (s *SMTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Backend creates sessions for the go-smtp server.
type Backend struct {
	processor Processor
	logger    logrus.FieldLogger
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Session{
		backend: b,
		logger:  b.logger.WithField("remote", remote),
	}, nil
}

// Session is one SMTP/LMTP connection.
type Session struct {
	backend *Backend
	logger  logrus.FieldLogger
	from    string
	rcpts   []string
}

// Mail implements smtp.Session.
func (s *Session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	s.rcpts = nil
	return nil
}

// Rcpt implements smtp.Session.
func (s *Session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data implements smtp.Session for SMTP transactions.
func (s *Session) Data(r io.Reader) error {
	raw, err := s.read(r)
	if err != nil {
		return err
	}

	var first error
	failed, temporary := 0, 0
	for _, rcpt := range s.rcpts {
		if err := s.deliver(rcpt, raw); err != nil {
			failed++
			if err == errTemporaryFailure {
				temporary++
			}
			if first == nil {
				first = err
			}
		}
	}
	if temporary > 0 {
		if failed < len(s.rcpts) {
			s.logger.WithFields(logrus.Fields{
				"envelopeFrom": s.from,
				"temporary":    temporary,
				"recipients":   len(s.rcpts),
			}).Warn("deferring message after temporary failure of some recipients")
		}
		return errTemporaryFailure
	}
	if failed == len(s.rcpts) {
		return first
	}
	if failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"envelopeFrom": s.from,
			"failed":       failed,
			"recipients":   len(s.rcpts),
		}).Warn("accepted message with some recipients refused")
	}
	return nil
}

// LMTPData implements smtp.LMTPSession: one status per recipient.
func (s *Session) LMTPData(r io.Reader, status smtp.StatusCollector) error {
	raw, err := s.read(r)
	if err != nil {
		return err
	}
	for _, rcpt := range s.rcpts {
		status.SetStatus(rcpt, s.deliver(rcpt, raw))
	}
	return nil
}

// Reset implements smtp.Session.
func (s *Session) Reset() {
	s.from = ""
	s.rcpts = nil
}

// Logout implements smtp.Session.
func (s *Session) Logout() error {
	return nil
}

func (s *Session) read(r io.Reader) ([]byte, error) {
	if len(s.rcpts) == 0 {
		return nil, errNoRecipients
	}
	// go-smtp enforces MaxMessageBytes while we read.
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// deliver processes raw for one recipient and maps the result to a reply.
func (s *Session) deliver(rcpt string, raw []byte) error {
	res, err := s.backend.processor.Process(context.Background(), types.Inbound{From: s.from, To: rcpt, Raw: raw})
	if err != nil {
		if res.Handled {
			return nil
		}
		if delivery.IsPermanent(err) {
			return errPermanentFailure
		}
		return errTemporaryFailure
	}
	if res.Outcome.Rejected {
		return rejection(res.Outcome.Reason)
	}
	return nil
}
