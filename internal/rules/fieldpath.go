// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Field path parsing and resolution.
 *
 * A path is a dotted string: field names, non-negative sequence indices, and
 * at most one $some/$every quantifier. ParsePath validates the syntax and
 * splits the path around its quantifier; Resolve walks the segments.
 *
 * Key functions:
 *   - ParsePath: "to.$some.domain" -> Path{Prefix: [to], Quantifier: $some, Suffix: [domain]}
 *   - Resolve: Traverses a Value following PathSegments
 *   - resolveRecursive: Internal recursive traversal
 *
 * Resolution is all-or-nothing: any miss (unknown field, index out of range,
 * header not present, stepping into a scalar) yields Absent instead of an
 * error. Only syntax problems are errors, and those are configuration errors.
 */

// Path is a parsed field path.
type Path struct {
	Raw        string
	Prefix     []types.PathSegment // segments before the quantifier (all segments when none)
	Quantifier types.Quantifier    // QuantifierNone when absent
	Suffix     []types.PathSegment // segments after the quantifier
}

// HasQuantifier reports whether the path contains $some or $every.
func (p Path) HasQuantifier() bool {
	return p.Quantifier != types.QuantifierNone
}

// ParsePath splits raw on '.' and classifies every segment.
// Returns a *types.ConfigError wrapping ErrInvalidPath, ErrPathTooDeep or
// ErrTooManyQuantifiers.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, types.NewConfigError(raw, "", types.ErrInvalidPath)
	}
	parts := strings.Split(raw, ".")
	if len(parts) > types.MaxPathDepth {
		return Path{}, types.NewConfigError(raw, "", types.ErrPathTooDeep)
	}

	p := Path{Raw: raw}
	quantifiers := 0
	for _, part := range parts {
		if part == "" {
			return Path{}, types.NewConfigError(raw, "", types.ErrInvalidPath)
		}
		seg := parseSegment(part)
		if seg.Quantifier != types.QuantifierNone {
			quantifiers++
			if quantifiers > types.MaxQuantifiers {
				return Path{}, types.NewConfigError(raw, "", types.ErrTooManyQuantifiers)
			}
			p.Quantifier = seg.Quantifier
			continue
		}
		if p.HasQuantifier() {
			p.Suffix = append(p.Suffix, seg)
		} else {
			p.Prefix = append(p.Prefix, seg)
		}
	}
	return p, nil
}

// parseSegment classifies one dotted component.
// Numeric-looking segments are indices; they still resolve as names on records.
func parseSegment(part string) types.PathSegment {
	switch types.Quantifier(part) {
	case types.QuantifierSome, types.QuantifierEvery:
		return types.PathSegment{Quantifier: types.Quantifier(part)}
	}
	if n, err := strconv.Atoi(part); err == nil && n >= 0 && part[0] != '+' {
		return types.PathSegment{Key: part, Index: n, IsIndex: true}
	}
	return types.PathSegment{Key: part}
}

// Resolve traverses root following path segments.
// Returns Absent when any segment does not resolve.
func Resolve(root Value, path []types.PathSegment) Value {
	return resolveRecursive(path, root)
}

// resolveRecursive walks one segment at a time. Records and headers are
// indexed by Key, sequences by Index; anything else ends in Absent.
func resolveRecursive(path []types.PathSegment, current Value) Value {
	if len(path) == 0 {
		return current
	}

	seg := path[0]
	remaining := path[1:]

	switch current.Kind() {
	case KindRecord:
		return resolveRecursive(remaining, current.Record().Field(seg.Key))

	case KindHeaders:
		v, ok := current.Headers().Get(seg.Key)
		if !ok {
			return Absent()
		}
		return resolveRecursive(remaining, String(v))

	case KindSequence:
		if !seg.IsIndex {
			// Cannot use a field name on a sequence
			return Absent()
		}
		seq := current.Seq()
		if seg.Index >= seq.Len() {
			return Absent()
		}
		return resolveRecursive(remaining, seq.Index(seg.Index))

	default:
		// Absent, or a scalar with path remaining
		return Absent()
	}
}
