// internal/core/delivery/executor.go
package delivery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bigcats-cc/email-sieve/internal/core/metrics"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Decision execution.
 *
 * A reject decision delivers nothing; the outcome carries the reason for the
 * SMTP layer to answer with. A forward decision sends the raw message, as
 * received, to each email in decision order. The first failed forward stops
 * the loop; recipients before it have already been delivered and are listed
 * in the outcome.
 *
 * A forward decision with no emails (every name unresolved) is accepted and
 * dropped.
 */

// Outcome describes what executing a decision did.
type Outcome struct {
	Rejected  bool     `json:"rejected"`
	Reason    string   `json:"reason,omitempty"`
	Delivered []string `json:"delivered,omitempty"`
	Dropped   bool     `json:"dropped,omitempty"`
}

// Executor applies resolved actions to inbound messages.
type Executor struct {
	forwarder Forwarder
	logger    logrus.FieldLogger
}

// NewExecutor returns an executor forwarding through f.
func NewExecutor(f Forwarder, logger logrus.FieldLogger) *Executor {
	return &Executor{forwarder: f, logger: logger}
}

// Forwarder returns the transport used by the executor.
func (e *Executor) Forwarder() Forwarder {
	return e.forwarder
}

// Execute applies action to in.
func (e *Executor) Execute(ctx context.Context, action types.ResolvedAction, in types.Inbound) (Outcome, error) {
	switch action.Kind {
	case types.ActionReject:
		return Outcome{Rejected: true, Reason: action.Message}, nil

	case types.ActionForward:
		if len(action.Emails) == 0 {
			e.logger.WithFields(logrus.Fields{
				"envelopeFrom": in.From,
				"envelopeTo":   in.To,
				"rule":         action.RuleName,
				"ruleIndex":    action.RuleIndex,
			}).Warn("forward decision has no resolvable recipients, dropping message")
			return Outcome{Dropped: true}, nil
		}

		outcome := Outcome{Delivered: make([]string, 0, len(action.Emails))}
		for _, to := range action.Emails {
			err := e.forwarder.Forward(ctx, in.From, to, in.Raw)
			metrics.ObserveForward(e.forwarder.Name(), err)
			if err != nil {
				return outcome, fmt.Errorf("forward to %s: %w", to, err)
			}
			outcome.Delivered = append(outcome.Delivered, to)
			e.logger.WithFields(logrus.Fields{
				"envelopeFrom": in.From,
				"to":           to,
				"transport":    e.forwarder.Name(),
			}).Debug("forwarded")
		}
		return outcome, nil

	default:
		return Outcome{}, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}
