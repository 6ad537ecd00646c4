// Package pipeline wires enrichment, rule resolution, journaling and delivery
// into the per-message processing path.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bigcats-cc/email-sieve/internal/core/db"
	"github.com/bigcats-cc/email-sieve/internal/core/delivery"
	"github.com/bigcats-cc/email-sieve/internal/core/metrics"
	"github.com/bigcats-cc/email-sieve/internal/enrich"
	"github.com/bigcats-cc/email-sieve/internal/rules"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

// Failure stages reported as the fallback reason.
const (
	StageEnrich  = "enrich"
	StageResolve = "resolve"
	StageDeliver = "deliver"
)

// Metric and log action for a forward decision with no recipients. The
// journal records it as a forward without recipients.
const actionDropped = "dropped"

// Journal stores decisions. *db.Journal implements it.
type Journal interface {
	Record(ctx context.Context, d db.Decision) error
}

// Result is the outcome of processing one message.
type Result struct {
	DecisionID types.DecisionID       `json:"decisionId"`
	Message    *types.EnrichedMessage `json:"message,omitempty"`
	Action     types.ResolvedAction   `json:"action"`
	Outcome    delivery.Outcome       `json:"outcome"`
	// Handled is set when processing failed and the fallback forwarded the
	// original message to its on_error recipient.
	Handled bool `json:"handled,omitempty"`
}

// Processor runs messages through the pipeline. Safe for concurrent use.
type Processor struct {
	engine   *rules.Engine
	executor *delivery.Executor
	fallback *delivery.Fallback
	journal  Journal
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New returns a processor. journal may be nil to disable journaling.
func New(engine *rules.Engine, executor *delivery.Executor, fallback *delivery.Fallback, journal Journal, logger logrus.FieldLogger) *Processor {
	return &Processor{
		engine:   engine,
		executor: executor,
		fallback: fallback,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
}

// Process enriches in, resolves it against the active rules, records the
// decision and executes it. A returned error means processing failed and the
// fallback has already run; Result.Handled tells whether the original message
// reached its on_error recipient.
func (p *Processor) Process(ctx context.Context, in types.Inbound) (Result, error) {
	started := p.now()
	cfg := p.engine.Config()

	msg, err := enrich.Enrich(in.Raw, in.From, in.To)
	if err != nil {
		return p.fail(ctx, cfg, in, nil, types.ResolvedAction{RuleIndex: -1}, StageEnrich, err, started)
	}

	action, err := rules.ResolveAction(cfg, msg)
	if err != nil {
		return p.fail(ctx, cfg, in, msg, types.ResolvedAction{RuleIndex: -1}, StageResolve, err, started)
	}

	decision := db.NewDecision(started, msg, action)
	result := Result{DecisionID: decision.ID, Message: msg, Action: action}

	outcome, err := p.executor.Execute(ctx, action, in)
	result.Outcome = outcome
	if err != nil {
		failed, ferr := p.fail(ctx, cfg, in, msg, action, StageDeliver, err, started)
		failed.Outcome = outcome
		return failed, ferr
	}

	label := string(action.Kind)
	if outcome.Dropped {
		label = actionDropped
	}
	p.record(ctx, decision)
	metrics.ObserveDecision(label, ruleMetricLabel(action), started)

	p.logger.WithFields(logrus.Fields{
		"decisionId":   decision.ID,
		"envelopeFrom": in.From,
		"envelopeTo":   in.To,
		"action":       label,
		"rule":         ruleMetricLabel(action),
		"recipients":   outcome.Delivered,
	}).Info("message routed")

	return result, nil
}

// DryRun resolves the decision for in without delivering or journaling it.
func (p *Processor) DryRun(in types.Inbound) (Result, error) {
	msg, err := enrich.Enrich(in.Raw, in.From, in.To)
	if err != nil {
		return Result{}, err
	}
	action, err := p.engine.Resolve(msg)
	if err != nil {
		return Result{Message: msg}, err
	}
	return Result{Message: msg, Action: action}, nil
}

// Engine returns the rules engine used by the processor.
func (p *Processor) Engine() *rules.Engine {
	return p.engine
}

func (p *Processor) fail(ctx context.Context, cfg *types.Config, in types.Inbound, msg *types.EnrichedMessage, action types.ResolvedAction, stage string, cause error, started time.Time) (Result, error) {
	metrics.EvaluationErrorsTotal.Inc()
	handled := p.fallback.Handle(ctx, cfg, in, msg, stage, cause)

	decision := db.NewDecision(started, msg, action)
	if msg == nil {
		decision.EnvelopeFrom = in.From
		decision.EnvelopeTo = in.To
	}
	decision.Action = db.ActionError
	decision.Error = fmt.Sprintf("%s: %v", stage, cause)
	p.record(ctx, decision)
	metrics.ObserveDecision(db.ActionError, "", started)

	return Result{DecisionID: decision.ID, Message: msg, Action: action, Handled: handled},
		fmt.Errorf("%s failed: %w", stage, cause)
}

func (p *Processor) record(ctx context.Context, d db.Decision) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(ctx, d); err != nil {
		p.logger.WithError(err).WithField("decisionId", d.ID).Error("failed to journal decision")
	}
}

// ruleMetricLabel names the deciding rule for metrics and logs.
func ruleMetricLabel(a types.ResolvedAction) string {
	switch {
	case a.IsDefault():
		return metrics.DefaultRuleLabel
	case a.RuleName != "":
		return a.RuleName
	default:
		return fmt.Sprintf("#%d", a.RuleIndex)
	}
}
