// internal/types/condition.go
package types

/*
 * Condition tree for rule evaluation.
 *
 * A Condition is a closed sum type: Predicate, FieldMatch, AndCondition,
 * OrCondition, NotCondition. The unexported marker method keeps other packages
 * from adding variants, so internal/rules can switch over it exhaustively.
 *
 * Construction goes through Func, Field, And, Or and Not. And/Or take a first
 * child plus a variadic tail, so an empty combinator cannot be built through
 * the constructors. Struct literals remain possible and are checked by the
 * evaluator and by rules.Validate.
 *
 * Operands are stored as given (string, number, bool, nil, or a slice for
 * `in`) and coerced by internal/rules at evaluation time.
 */

// Operator is the comparison requested by a FieldMatch.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpMatches    Operator = "matches"
	OpIn         Operator = "in"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
)

// Operators lists the operator vocabulary in a stable order.
var Operators = []Operator{
	OpEquals, OpContains, OpStartsWith, OpEndsWith, OpMatches,
	OpIn, OpGt, OpGte, OpLt, OpLte,
}

// Valid reports whether op is part of the operator vocabulary.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// ParseOperator validates an operator name.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.Valid() {
		return "", NewConfigError("", op, ErrUnknownOperator)
	}
	return op, nil
}

// Quantifier selects existential or universal matching over a sequence.
type Quantifier string

const (
	QuantifierNone  Quantifier = ""
	QuantifierSome  Quantifier = "$some"
	QuantifierEvery Quantifier = "$every"
)

// PathSegment represents one component of a field path.
type PathSegment struct {
	Key        string     // field or header name
	Index      int        // sequence index
	IsIndex    bool       // disambiguates Index=0 from unset
	Quantifier Quantifier // $some/$every segment
}

// String renders the segment as it appears in a dotted path.
func (s PathSegment) String() string {
	if s.Quantifier != QuantifierNone {
		return string(s.Quantifier)
	}
	return s.Key
}

// Condition is a boolean expression over an EnrichedMessage.
type Condition interface {
	isCondition()
}

// PredicateFunc is an opaque test over the whole message.
type PredicateFunc func(*EnrichedMessage) bool

// Predicate wraps an opaque function. The engine only ever calls it.
type Predicate struct {
	Name string // used in logs and validation output
	Fn   PredicateFunc
}

// FieldMatch compares the value found at Path with Operand.
type FieldMatch struct {
	Path     string
	Operator Operator
	Operand  any
}

// AndCondition is true when every child is true.
type AndCondition struct {
	Children []Condition
}

// OrCondition is true when any child is true.
type OrCondition struct {
	Children []Condition
}

// NotCondition negates its child.
type NotCondition struct {
	Child Condition
}

func (*Predicate) isCondition()    {}
func (*FieldMatch) isCondition()   {}
func (*AndCondition) isCondition() {}
func (*OrCondition) isCondition()  {}
func (*NotCondition) isCondition() {}

// Func builds a Predicate condition.
func Func(name string, fn PredicateFunc) Condition {
	return &Predicate{Name: name, Fn: fn}
}

// Field builds a FieldMatch condition.
func Field(path string, op Operator, operand any) Condition {
	return &FieldMatch{Path: path, Operator: op, Operand: operand}
}

// And builds a conjunction of at least one condition.
func And(first Condition, rest ...Condition) Condition {
	return &AndCondition{Children: append([]Condition{first}, rest...)}
}

// Or builds a disjunction of at least one condition.
func Or(first Condition, rest ...Condition) Condition {
	return &OrCondition{Children: append([]Condition{first}, rest...)}
}

// Not negates a condition.
func Not(c Condition) Condition {
	return &NotCondition{Child: c}
}
