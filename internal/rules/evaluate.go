// internal/rules/evaluate.go
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Condition evaluation.
 *
 * Walks a types.Condition tree against an EnrichedMessage:
 *
 *   - Predicate:  calls Fn exactly once; the result is returned unchanged
 *   - And:        true iff every child is true; stops at the first false
 *   - Or:         true iff any child is true; stops at the first true
 *   - Not:        negates its child
 *   - FieldMatch: parse path -> coerce operand -> resolve -> match
 *
 * Quantified paths (one $some or $every segment) resolve the prefix to a
 * sequence, then resolve the suffix and match once per element:
 *
 *   - $some:  true iff any element matches; false on an empty sequence
 *   - $every: true iff all elements match; true on an empty sequence
 *
 * A prefix that does not resolve to a sequence makes the match false.
 * Both folds short-circuit in element order.
 *
 * Misses never surface as errors. Configuration errors (bad path, bad
 * operand, operator not legal for the resolved kind, empty combinator) stop
 * evaluation and come back as *types.ConfigError.
 *
 * Children are evaluated in declared order: predicates may have side effects
 * and the evaluator does not reorder or memoize.
 */

// Evaluate reports whether msg satisfies cond.
func Evaluate(cond types.Condition, msg *types.EnrichedMessage) (bool, error) {
	switch c := cond.(type) {
	case nil:
		return false, types.NewConfigError("", "", types.ErrNilCondition)

	case *types.Predicate:
		if c.Fn == nil {
			return false, types.NewConfigError(c.Name, "", types.ErrNilPredicate)
		}
		return c.Fn(msg), nil

	case *types.FieldMatch:
		return evaluateField(c, msg)

	case *types.AndCondition:
		if len(c.Children) == 0 {
			return false, types.NewConfigError("", "", types.ErrEmptyCombinator)
		}
		for _, child := range c.Children {
			ok, err := Evaluate(child, msg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case *types.OrCondition:
		if len(c.Children) == 0 {
			return false, types.NewConfigError("", "", types.ErrEmptyCombinator)
		}
		for _, child := range c.Children {
			ok, err := Evaluate(child, msg)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case *types.NotCondition:
		ok, err := Evaluate(c.Child, msg)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, types.NewConfigError("", "", fmt.Errorf("unsupported condition type %T", cond))
	}
}

// evaluateField evaluates a single FieldMatch.
// Orchestrates: parse path -> coerce operand -> resolve -> match.
func evaluateField(fm *types.FieldMatch, msg *types.EnrichedMessage) (bool, error) {
	path, err := ParsePath(fm.Path)
	if err != nil {
		return false, err
	}

	operand, err := Coerce(fm.Operator, fm.Operand)
	if err != nil {
		return false, types.NewConfigError(fm.Path, fm.Operator, err)
	}

	root := MessageValue(msg)
	resolved := Resolve(root, path.Prefix)

	if !path.HasQuantifier() {
		matched, err := Match(resolved, fm.Operator, operand)
		if err != nil {
			return false, kindError(fm, resolved, err)
		}
		return matched, nil
	}

	if resolved.Kind() != KindSequence {
		return false, nil
	}
	return evaluateQuantified(fm, path, resolved.Seq(), operand)
}

// evaluateQuantified folds the per-element matches of a quantified path.
func evaluateQuantified(fm *types.FieldMatch, path Path, seq Sequence, operand Operand) (bool, error) {
	every := path.Quantifier == types.QuantifierEvery

	for i := 0; i < seq.Len(); i++ {
		elem := Resolve(seq.Index(i), path.Suffix)
		matched, err := Match(elem, fm.Operator, operand)
		if err != nil {
			return false, kindError(fm, elem, err)
		}
		if every && !matched {
			return false, nil
		}
		if !every && matched {
			return true, nil
		}
	}

	// Exhausted: $every saw no counterexample (vacuously true when empty),
	// $some saw no witness.
	return every, nil
}

// kindError wraps a matcher error with the failing condition and the kind it saw.
// Operator errors also list the operators the kind accepts.
func kindError(fm *types.FieldMatch, v Value, err error) error {
	if errors.Is(err, types.ErrInvalidOperator) {
		legal := OperatorsFor(v.Kind())
		if len(legal) == 0 {
			return types.NewConfigError(fm.Path, fm.Operator,
				fmt.Errorf("%w (value kind %s accepts no operators)", err, v.Kind()))
		}
		names := make([]string, len(legal))
		for i, op := range legal {
			names[i] = string(op)
		}
		return types.NewConfigError(fm.Path, fm.Operator,
			fmt.Errorf("%w (value kind %s accepts %s)", err, v.Kind(), strings.Join(names, ", ")))
	}
	return types.NewConfigError(fm.Path, fm.Operator, fmt.Errorf("%w (value kind %s)", err, v.Kind()))
}
