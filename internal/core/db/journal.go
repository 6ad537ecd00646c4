// internal/core/db/journal.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Decision journal.
 *
 * One row per processed message: who sent it to whom, what the rule engine
 * decided and why, and the error if processing failed. Rows are keyed by a
 * UUIDv7 decision ID so inserts stay append-mostly.
 *
 * Recipients are stored comma-separated; addresses cannot contain a bare
 * comma once parsed.
 */

// Journal actions beyond the two rule outcomes.
const ActionError = "error"

// MaxRecentLimit caps Recent.
const MaxRecentLimit = 1000

// ErrDecisionNotFound indicates no journal row for the requested ID.
var ErrDecisionNotFound = errors.New("decision not found")

// Decision is one journal row.
type Decision struct {
	ID           types.DecisionID `db:"id" json:"id"`
	ReceivedAt   Timestamp        `db:"received_at" json:"receivedAt"`
	EnvelopeFrom string           `db:"envelope_from" json:"envelopeFrom"`
	EnvelopeTo   string           `db:"envelope_to" json:"envelopeTo"`
	Subject      string           `db:"subject" json:"subject,omitempty"`
	Action       string           `db:"action" json:"action"`
	Recipients   string           `db:"recipients" json:"recipients,omitempty"`
	Reason       string           `db:"reason" json:"reason,omitempty"`
	RuleIndex    int              `db:"rule_index" json:"ruleIndex"`
	RuleName     string           `db:"rule_name" json:"ruleName,omitempty"`
	Error        string           `db:"error_message" json:"error,omitempty"`
}

// NewDecision builds a journal row for a resolved action.
func NewDecision(received time.Time, msg *types.EnrichedMessage, action types.ResolvedAction) Decision {
	d := Decision{
		ID:         types.NewDecisionID(),
		ReceivedAt: Timestamp{received},
		Action:     string(action.Kind),
		Recipients: strings.Join(action.Emails, ","),
		Reason:     action.Message,
		RuleIndex:  action.RuleIndex,
		RuleName:   action.RuleName,
	}
	if msg != nil {
		d.EnvelopeFrom = msg.Envelope.From.EmailAddress
		d.EnvelopeTo = msg.Envelope.To.EmailAddress
		if msg.Subject != nil {
			d.Subject = *msg.Subject
		}
	}
	return d
}

// RecipientList splits the stored recipients.
func (d Decision) RecipientList() []string {
	if d.Recipients == "" {
		return []string{}
	}
	return strings.Split(d.Recipients, ",")
}

// Journal records routing decisions.
type Journal struct {
	q *Queries
}

// NewJournal loads the journal queries for db. Migrations must already be applied.
func NewJournal(db *sqlx.DB) (*Journal, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Journal{q: q}, nil
}

// Record inserts d.
func (j *Journal) Record(ctx context.Context, d Decision) error {
	_, err := j.q.Exec(ctx, "insert-decision",
		d.ID, d.ReceivedAt, d.EnvelopeFrom, d.EnvelopeTo, d.Subject, d.Action,
		d.Recipients, d.Reason, d.RuleIndex, d.RuleName, d.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision %s: %w", d.ID, err)
	}
	return nil
}

// Get returns the decision with the given ID.
func (j *Journal) Get(ctx context.Context, id types.DecisionID) (Decision, error) {
	var d Decision
	err := j.q.Get(ctx, "get-decision", &d, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, ErrDecisionNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load decision %s: %w", id, err)
	}
	return d, nil
}

// Recent returns up to limit decisions, newest first.
// limit is clamped to 1..MaxRecentLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	decisions := []Decision{}
	if err := j.q.Select(ctx, "list-recent-decisions", &decisions, limit); err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return decisions, nil
}

// ActionCount is one row of CountByAction.
type ActionCount struct {
	Action string `db:"action" json:"action"`
	Total  int64  `db:"total" json:"total"`
}

// CountByAction summarises the journal by action.
func (j *Journal) CountByAction(ctx context.Context) ([]ActionCount, error) {
	counts := []ActionCount{}
	if err := j.q.Select(ctx, "count-decisions-by-action", &counts); err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	return counts, nil
}
