// internal/rules/resolve.go
package rules

import (
	"fmt"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Rule and action resolution.
 *
 * ResolveAction scans cfg.Rules in declared order. A rule without a condition
 * matches unconditionally; otherwise its condition is evaluated. The first
 * match is mapped to a ResolvedAction and returned. When no rule matches the
 * result is Reject(types.DefaultRejectReason).
 *
 * Forward names are looked up by exact name in cfg.ForwardAddresses. Names
 * without an address are dropped without error, so a forward decision may
 * carry no emails; executors treat that as no recipients.
 *
 * A configuration error in any evaluated condition aborts resolution; the
 * error names the rule it came from.
 */

// ResolveAction returns the decision for msg under cfg.
func ResolveAction(cfg *types.Config, msg *types.EnrichedMessage) (types.ResolvedAction, error) {
	for i, rule := range cfg.Rules {
		if rule.When != nil {
			matched, err := Evaluate(rule.When, msg)
			if err != nil {
				return types.ResolvedAction{}, fmt.Errorf("rule %s: %w", ruleLabel(i, rule), err)
			}
			if !matched {
				continue
			}
		}

		action, err := resolveRuleAction(cfg, rule.Action)
		if err != nil {
			return types.ResolvedAction{}, fmt.Errorf("rule %s: %w", ruleLabel(i, rule), err)
		}
		action.RuleIndex = i
		action.RuleName = rule.Name
		return action, nil
	}

	return types.Reject(types.DefaultRejectReason), nil
}

// resolveRuleAction maps a declared action to a concrete one.
func resolveRuleAction(cfg *types.Config, action types.Action) (types.ResolvedAction, error) {
	switch a := action.(type) {
	case *types.RejectAction:
		return types.Reject(a.Reason), nil

	case *types.ForwardAction:
		if len(a.Names) == 0 {
			return types.ResolvedAction{}, types.NewConfigError("", "", types.ErrEmptyForwardList)
		}
		return types.Forward(ResolveForwardNames(cfg, a.Names)), nil

	default:
		return types.ResolvedAction{}, types.NewConfigError("", "", types.ErrMissingAction)
	}
}

// ResolveForwardNames maps names to emails, preserving order and dropping
// names with no forward address. The result is never nil.
func ResolveForwardNames(cfg *types.Config, names []string) []string {
	emails := make([]string, 0, len(names))
	for _, name := range names {
		if email, ok := cfg.LookupAddress(name); ok {
			emails = append(emails, email)
		}
	}
	return emails
}

// ruleLabel identifies a rule in errors and logs.
func ruleLabel(i int, rule types.Rule) string {
	if rule.Name != "" {
		return fmt.Sprintf("#%d (%s)", i, rule.Name)
	}
	return fmt.Sprintf("#%d", i)
}
