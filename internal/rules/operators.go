// internal/rules/operators.go
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Value matching.
 *
 * Match dispatches on the kind of the resolved value and applies one operator:
 *
 *   - string:  equals, contains, startsWith, endsWith, matches, in
 *   - number:  equals, gt, gte, lt, lte, in
 *   - boolean: equals
 *   - absent:  equals (true only against an absent operand); every other
 *              operator is false
 *
 * Sequences, headers and records are never matched directly: headers and
 * records are stepped into by the path, sequences by a quantifier. Reaching
 * the matcher with one of them is an operator/kind mismatch.
 *
 * Errors returned here are bare sentinels (ErrInvalidOperator, ErrOperandType,
 * ErrInvalidPattern); the evaluator wraps them into *types.ConfigError with
 * the failing path.
 *
 * `matches` compiles the pattern on every call and anchors it, so the whole
 * value must match.
 */

var operatorsByKind = map[Kind][]types.Operator{
	KindString: {types.OpEquals, types.OpContains, types.OpStartsWith, types.OpEndsWith, types.OpMatches, types.OpIn},
	KindNumber: {types.OpEquals, types.OpGt, types.OpGte, types.OpLt, types.OpLte, types.OpIn},
	KindBool:   {types.OpEquals},
	KindAbsent: {types.OpEquals},
}

// OperatorsFor returns the operators legal for a value kind.
func OperatorsFor(k Kind) []types.Operator {
	return operatorsByKind[k]
}

// legalFor reports whether op may be applied to a value of kind k.
func legalFor(k Kind, op types.Operator) bool {
	for _, candidate := range operatorsByKind[k] {
		if candidate == op {
			return true
		}
	}
	return false
}

// Match applies op with operand to value.
func Match(value Value, op types.Operator, operand Operand) (bool, error) {
	switch value.Kind() {
	case KindAbsent:
		return matchAbsent(op, operand), nil
	case KindString:
		return matchString(value.Str(), op, operand)
	case KindNumber:
		return matchNumber(value.Num(), op, operand)
	case KindBool:
		return matchBool(value.Boolean(), op, operand)
	default:
		return false, types.ErrInvalidOperator
	}
}

// matchAbsent: equals is true only for an absent operand, anything else is false.
func matchAbsent(op types.Operator, operand Operand) bool {
	return op == types.OpEquals && operand.Value.IsAbsent()
}

// matchString applies a string operator. Comparison is case-sensitive.
func matchString(s string, op types.Operator, operand Operand) (bool, error) {
	switch op {
	case types.OpEquals:
		if operand.Value.IsAbsent() {
			return false, nil
		}
		target, err := stringOperand(operand)
		if err != nil {
			return false, err
		}
		return s == target, nil
	case types.OpContains:
		target, err := stringOperand(operand)
		if err != nil {
			return false, err
		}
		return strings.Contains(s, target), nil
	case types.OpStartsWith:
		target, err := stringOperand(operand)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(s, target), nil
	case types.OpEndsWith:
		target, err := stringOperand(operand)
		if err != nil {
			return false, err
		}
		return strings.HasSuffix(s, target), nil
	case types.OpMatches:
		re := operand.re
		if re == nil {
			var err error
			if re, err = compilePattern(operand.Pattern); err != nil {
				return false, err
			}
		}
		return re.MatchString(s), nil
	case types.OpIn:
		return matchIn(String(s), KindString, operand.Set)
	default:
		return false, types.ErrInvalidOperator
	}
}

// matchNumber applies a numeric operator.
func matchNumber(n float64, op types.Operator, operand Operand) (bool, error) {
	if op == types.OpIn {
		return matchIn(Number(n), KindNumber, operand.Set)
	}
	if !legalFor(KindNumber, op) {
		return false, types.ErrInvalidOperator
	}
	if op == types.OpEquals && operand.Value.IsAbsent() {
		return false, nil
	}
	if operand.Value.Kind() != KindNumber {
		return false, types.ErrOperandType
	}
	target := operand.Value.Num()

	switch op {
	case types.OpEquals:
		return n == target, nil
	case types.OpGt:
		return n > target, nil
	case types.OpGte:
		return n >= target, nil
	case types.OpLt:
		return n < target, nil
	case types.OpLte:
		return n <= target, nil
	default:
		return false, types.ErrInvalidOperator
	}
}

// matchBool applies equals to a boolean.
func matchBool(b bool, op types.Operator, operand Operand) (bool, error) {
	if op != types.OpEquals {
		return false, types.ErrInvalidOperator
	}
	switch operand.Value.Kind() {
	case KindAbsent:
		return false, nil
	case KindBool:
		return b == operand.Value.Boolean(), nil
	default:
		return false, types.ErrOperandType
	}
}

// matchIn checks membership. Every candidate must have the field's kind.
func matchIn(v Value, kind Kind, set []Value) (bool, error) {
	if len(set) == 0 {
		return false, types.ErrEmptyInOperand
	}
	found := false
	for _, candidate := range set {
		if candidate.Kind() != kind {
			return false, types.ErrOperandType
		}
		if !found && v.Equal(candidate) {
			found = true
		}
	}
	return found, nil
}

// stringOperand extracts a string operand for string operators.
func stringOperand(operand Operand) (string, error) {
	if operand.Value.Kind() != KindString {
		return "", types.ErrOperandType
	}
	return operand.Value.Str(), nil
}

// compilePattern anchors pattern for a full match and compiles it.
// The bare pattern is compiled first so "a)(b" is rejected rather than
// balanced by the wrapping group.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	return re, nil
}
