// internal/core/delivery/fallback.go
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/bigcats-cc/email-sieve/internal/address"
	"github.com/bigcats-cc/email-sieve/internal/core/metrics"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Error fallback.
 *
 * When a message cannot be enriched, resolved or delivered, Handle:
 *   1. logs the failure with every header of the message plus _errorReason
 *      and _errorMessage;
 *   2. forwards the original message to onError.forwardOriginalMessageTo;
 *   3. sends a plain-text error report to onError.sendErrorReportTo, from
 *      postmaster@<envelope sender domain>.
 *
 * Both targets are forward-address names. Failures in steps 2 and 3 are
 * logged and never returned. Handle reports whether the original reached its
 * fallback recipient, which is what decides if the message can be accepted.
 */

// Log field keys for fallback entries.
const (
	FieldErrorReason  = "_errorReason"
	FieldErrorMessage = "_errorMessage"
)

// Fallback handles messages whose processing failed.
type Fallback struct {
	forwarder Forwarder
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewFallback returns a fallback sending through f.
func NewFallback(f Forwarder, logger logrus.FieldLogger) *Fallback {
	return &Fallback{forwarder: f, logger: logger, now: time.Now}
}

// Handle runs the fallback for in. msg is nil when enrichment failed.
// cfg may be nil, in which case only the log entry is written.
func (f *Fallback) Handle(ctx context.Context, cfg *types.Config, in types.Inbound, msg *types.EnrichedMessage, reason string, cause error) bool {
	f.logFailure(in, msg, reason, cause)
	if cfg == nil {
		return false
	}

	forwarded := false
	if name := cfg.OnError.ForwardOriginalMessageTo; name != "" {
		forwarded = f.forwardOriginal(ctx, cfg, in, name)
	}
	if name := cfg.OnError.SendErrorReportTo; name != "" {
		f.sendReport(ctx, cfg, in, msg, name, reason, cause)
	}
	return forwarded
}

func (f *Fallback) logFailure(in types.Inbound, msg *types.EnrichedMessage, reason string, cause error) {
	fields := logrus.Fields{
		"envelopeFrom": in.From,
		"envelopeTo":   in.To,
	}
	if msg != nil {
		seen := make(map[string]bool)
		for _, hf := range msg.Headers.Fields() {
			key := strings.ToLower(hf.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			fields[hf.Name] = strings.Join(msg.Headers.Values(hf.Name), ", ")
		}
	}
	fields[FieldErrorReason] = reason
	fields[FieldErrorMessage] = cause.Error()

	f.logger.WithFields(fields).Error("message processing failed")
}

func (f *Fallback) forwardOriginal(ctx context.Context, cfg *types.Config, in types.Inbound, name string) bool {
	to, ok := cfg.LookupAddress(name)
	if !ok {
		f.logger.WithField("name", name).Warn("on_error forward target has no address")
		return false
	}

	err := f.forwarder.Forward(ctx, in.From, to, in.Raw)
	metrics.ObserveForward(f.forwarder.Name(), err)
	if err != nil {
		f.logger.WithError(err).WithField("to", to).Error("failed to forward original message")
		return false
	}
	return true
}

func (f *Fallback) sendReport(ctx context.Context, cfg *types.Config, in types.Inbound, msg *types.EnrichedMessage, name, reason string, cause error) {
	to, ok := cfg.LookupAddress(name)
	if !ok {
		f.logger.WithField("name", name).Warn("on_error report target has no address")
		return
	}

	from := "postmaster@" + senderDomain(in, msg)
	report, err := BuildErrorReport(from, to, in, msg, reason, cause, f.now())
	if err != nil {
		f.logger.WithError(err).Error("failed to build error report")
		return
	}

	err = f.forwarder.Forward(ctx, from, to, report)
	metrics.ObserveForward(f.forwarder.Name(), err)
	if err != nil {
		f.logger.WithError(err).WithField("to", to).Error("failed to send error report")
	}
}

func senderDomain(in types.Inbound, msg *types.EnrichedMessage) string {
	if msg != nil {
		return msg.Envelope.From.Domain
	}
	return address.ParseOrFallback(in.From).Domain
}

// BuildErrorReport composes the plain-text report sent to the on_error
// report recipient.
func BuildErrorReport(from, to string, in types.Inbound, msg *types.EnrichedMessage, reason string, cause error, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: "Mail Delivery System", Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject("Message processing failed: " + reason)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Auto-Submitted", "auto-generated")
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "A message could not be processed.\n\n")
	fmt.Fprintf(&body, "Reason: %s\n", reason)
	fmt.Fprintf(&body, "Error:  %s\n\n", cause)
	fmt.Fprintf(&body, "Envelope from: %s\n", in.From)
	fmt.Fprintf(&body, "Envelope to:   %s\n", in.To)
	fmt.Fprintf(&body, "Size:          %d bytes\n\n", len(in.Raw))
	if msg != nil {
		body.WriteString("Headers:\n")
		for _, hf := range msg.Headers.Fields() {
			fmt.Fprintf(&body, "  %s: %s\n", hf.Name, hf.Value)
		}
	} else {
		body.WriteString("Headers could not be parsed.\n")
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create report writer: %w", err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
