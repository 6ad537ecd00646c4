package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for rule configuration problems.
// They are always delivered wrapped in a *ConfigError.
var (
	// ErrInvalidOperator indicates an operator that is not legal for the kind of
	// value the path resolves to (e.g. contains against a number).
	ErrInvalidOperator = errors.New("invalid operator for value kind")

	// ErrUnknownOperator indicates an operator outside the operator vocabulary.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrEmptyInOperand indicates an `in` operand with no candidate values.
	ErrEmptyInOperand = errors.New("in operator requires a non-empty set")

	// ErrTooManyInValues indicates an `in` operand exceeds MaxInOperandValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrInvalidPattern indicates a `matches` operand that does not compile.
	ErrInvalidPattern = errors.New("invalid regular expression")

	// ErrOperandType indicates an operand whose type does not fit the operator or field.
	ErrOperandType = errors.New("operand type does not match field")

	// ErrInvalidPath indicates an empty path or an empty path segment.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyQuantifiers indicates more than one $some/$every in a path.
	ErrTooManyQuantifiers = errors.New("field path has more than one quantifier")

	// ErrUnknownField indicates a path that names no field of the message schema.
	ErrUnknownField = errors.New("unknown message field")

	// ErrEmptyCombinator indicates an and/or condition without children.
	ErrEmptyCombinator = errors.New("combinator requires at least one condition")

	// ErrNilPredicate indicates a predicate condition without a function.
	ErrNilPredicate = errors.New("predicate has no function")

	// ErrNilCondition indicates a nil child inside a combinator.
	ErrNilCondition = errors.New("condition is nil")

	// ErrMissingAction indicates a rule with neither a forward nor a reject action.
	ErrMissingAction = errors.New("rule has no action")

	// ErrEmptyForwardList indicates a forward action without names.
	ErrEmptyForwardList = errors.New("forward action requires at least one name")

	// ErrNoForwardAddresses indicates a config without forward addresses.
	ErrNoForwardAddresses = errors.New("config has no forward addresses")

	// ErrNoRules indicates a config without rules.
	ErrNoRules = errors.New("config has no rules")

	// ErrMalformedCondition indicates a rules-file condition node that is not
	// exactly one of field/all/any/not/predicate.
	ErrMalformedCondition = errors.New("condition must have exactly one form")

	// ErrUnknownPredicate indicates a rules-file predicate name with no registered function.
	ErrUnknownPredicate = errors.New("unknown predicate")

	// ErrAmbiguousAction indicates a rules-file rule with both forward_to and reject.
	ErrAmbiguousAction = errors.New("rule has both forward_to and reject")
)

// Sentinel errors for message handling.
var (
	// ErrInvalidAddress indicates an email address that could not be parsed.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrMessageTooLarge indicates a raw message exceeds the configured size.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")

	// ErrMalformedMessage indicates a raw message whose header block cannot be parsed.
	ErrMalformedMessage = errors.New("malformed message")
)

// ConfigError reports a broken rule set. Evaluation stops on the first one and
// the caller decides on a fallback.
type ConfigError struct {
	Path     string   // field path of the failing condition, if any
	Operator Operator // operator of the failing condition, if any
	Err      error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Operator != "":
		return fmt.Sprintf("rule config: %s %s: %v", e.Path, e.Operator, e.Err)
	case e.Path != "":
		return fmt.Sprintf("rule config: %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("rule config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err with the condition that produced it.
func NewConfigError(path string, op Operator, err error) *ConfigError {
	return &ConfigError{Path: path, Operator: op, Err: err}
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
