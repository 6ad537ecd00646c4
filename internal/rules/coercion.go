// internal/rules/coercion.go
package rules

import (
	"regexp"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Operand coercion.
 *
 * Conditions carry operands as plain Go values, either from Go code
 * (types.Field("size", types.OpGt, 1024)) or from YAML decoding (int, float64,
 * string, bool, nil, []any). Coerce turns them into typed Operands once per
 * evaluation so the matcher only deals with Values.
 *
 * Type mapping:
 *   - nil                         -> Absent (only meaningful for equals)
 *   - string, Importance, AuthResult -> String
 *   - all Go integer/float types  -> Number
 *   - bool                        -> Bool
 *   - slices (in only)            -> Set of the above scalars
 *   - string (matches only)       -> compiled, anchored pattern
 *
 * Anything else is a configuration error (ErrOperandType). Coercion is strict
 * in both directions: "5" never becomes a number and 5 never becomes a string.
 */

// Operand is a coerced comparison operand.
type Operand struct {
	Value   Value   // scalar operand; Absent for a nil operand
	Set     []Value // candidate values for `in`
	Pattern string  // regular expression for `matches`

	re *regexp.Regexp
}

// Coerce validates op and converts raw into an Operand.
func Coerce(op types.Operator, raw any) (Operand, error) {
	if !op.Valid() {
		return Operand{}, types.ErrUnknownOperator
	}

	switch op {
	case types.OpIn:
		set, err := coerceSet(raw)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Set: set}, nil

	case types.OpMatches:
		pattern, ok := raw.(string)
		if !ok {
			return Operand{}, types.ErrOperandType
		}
		re, err := compilePattern(pattern)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Pattern: pattern, re: re}, nil

	default:
		v, err := coerceScalar(raw)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Value: v}, nil
	}
}

// coerceSet converts a slice operand for `in`. Empty sets are rejected.
func coerceSet(raw any) ([]Value, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []float64:
		for _, n := range v {
			items = append(items, n)
		}
	case []int:
		for _, n := range v {
			items = append(items, n)
		}
	case []int64:
		for _, n := range v {
			items = append(items, n)
		}
	case nil:
		return nil, types.ErrEmptyInOperand
	default:
		return nil, types.ErrOperandType
	}

	if len(items) == 0 {
		return nil, types.ErrEmptyInOperand
	}
	if len(items) > types.MaxInOperandValues {
		return nil, types.ErrTooManyInValues
	}

	set := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := coerceScalar(item)
		if err != nil {
			return nil, err
		}
		if v.IsAbsent() {
			return nil, types.ErrOperandType
		}
		set = append(set, v)
	}
	return set, nil
}

// coerceScalar converts a single operand value.
func coerceScalar(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Absent(), nil
	case string:
		return String(v), nil
	case types.Importance:
		return String(string(v)), nil
	case types.AuthResult:
		return String(string(v)), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int8:
		return Number(float64(v)), nil
	case int16:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case uint:
		return Number(float64(v)), nil
	case uint8:
		return Number(float64(v)), nil
	case uint16:
		return Number(float64(v)), nil
	case uint32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	default:
		return Value{}, types.ErrOperandType
	}
}
