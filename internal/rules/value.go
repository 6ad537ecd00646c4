// internal/rules/value.go
package rules

import (
	"fmt"
	"strconv"
)

/*
 * Resolved values.
 *
 * Value is a closed tagged union over the kinds a path can resolve to:
 * Absent, String, Number, Bool, Sequence, Headers and Record. The matcher
 * switches on Kind, never on the operand, so the kind of the resolved value
 * alone decides which operators are legal.
 *
 * Sequence, HeaderLookup and Record are small read-only interfaces implemented
 * by the message accessors in accessors.go. No reflection is involved.
 */

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
	KindSequence
	KindHeaders
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindSequence:
		return "sequence"
	case KindHeaders:
		return "headers"
	case KindRecord:
		return "record"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Sequence is an ordered, indexable collection of values.
type Sequence interface {
	Len() int
	Index(i int) Value
}

// HeaderLookup resolves a header name to its first value.
type HeaderLookup interface {
	Get(name string) (string, bool)
}

// Record exposes named fields. Unknown fields resolve to Absent.
type Record interface {
	Field(name string) Value
}

// Value is a resolved value. The zero Value is Absent.
type Value struct {
	kind    Kind
	str     string
	num     float64
	boolean bool
	seq     Sequence
	headers HeaderLookup
	record  Record
}

// Absent returns the value of a path that does not exist.
func Absent() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a number.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// SequenceOf wraps a sequence.
func SequenceOf(s Sequence) Value { return Value{kind: KindSequence, seq: s} }

// HeadersOf wraps a header multimap.
func HeadersOf(h HeaderLookup) Value { return Value{kind: KindHeaders, headers: h} }

// RecordOf wraps a record.
func RecordOf(r Record) Value { return Value{kind: KindRecord, record: r} }

// OptionalString returns Absent for nil, the string otherwise.
func OptionalString(s *string) Value {
	if s == nil {
		return Absent()
	}
	return String(*s)
}

// NonEmptyString returns Absent for "", the string otherwise.
func NonEmptyString(s string) Value {
	if s == "" {
		return Absent()
	}
	return String(s)
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is Absent.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Str returns the string payload; only meaningful for KindString.
func (v Value) Str() string { return v.str }

// Num returns the number payload; only meaningful for KindNumber.
func (v Value) Num() float64 { return v.num }

// Boolean returns the bool payload; only meaningful for KindBool.
func (v Value) Boolean() bool { return v.boolean }

// Seq returns the sequence payload; only meaningful for KindSequence.
func (v Value) Seq() Sequence { return v.seq }

// Headers returns the header payload; only meaningful for KindHeaders.
func (v Value) Headers() HeaderLookup { return v.headers }

// Record returns the record payload; only meaningful for KindRecord.
func (v Value) Record() Record { return v.record }

// Equal compares scalar values. Composite kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindAbsent:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.boolean == o.boolean
	default:
		return false
	}
}

// GoString renders scalar values for diagnostics.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}
