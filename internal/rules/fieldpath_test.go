package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantPrefix     []string
		wantQuantifier types.Quantifier
		wantSuffix     []string
	}{
		{"single field", "subject", []string{"subject"}, types.QuantifierNone, nil},
		{"nested record", "envelope.from.domain", []string{"envelope", "from", "domain"}, types.QuantifierNone, nil},
		{"index", "to.0.domain", []string{"to", "0", "domain"}, types.QuantifierNone, nil},
		{"some", "to.$some.domain", []string{"to"}, types.QuantifierSome, []string{"domain"}},
		{"every", "cc.$every.plusAlias", []string{"cc"}, types.QuantifierEvery, []string{"plusAlias"}},
		{"header name", "headers.List-Id", []string{"headers", "List-Id"}, types.QuantifierNone, nil},
		{"trailing quantifier", "to.$some", []string{"to"}, types.QuantifierSome, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.raw)
			if err != nil {
				t.Fatalf("ParsePath(%q) error = %v, want nil", tt.raw, err)
			}
			if got := segmentNames(p.Prefix); !equalStrings(got, tt.wantPrefix) {
				t.Errorf("Prefix = %v, want %v", got, tt.wantPrefix)
			}
			if p.Quantifier != tt.wantQuantifier {
				t.Errorf("Quantifier = %q, want %q", p.Quantifier, tt.wantQuantifier)
			}
			if got := segmentNames(p.Suffix); !equalStrings(got, tt.wantSuffix) {
				t.Errorf("Suffix = %v, want %v", got, tt.wantSuffix)
			}
		})
	}
}

func TestParsePath_IndexSegments(t *testing.T) {
	p, err := ParsePath("to.1.domain")
	if err != nil {
		t.Fatalf("ParsePath() error = %v", err)
	}
	seg := p.Prefix[1]
	if !seg.IsIndex || seg.Index != 1 {
		t.Errorf("segment = %+v, want index 1", seg)
	}
	if p.Prefix[0].IsIndex {
		t.Errorf("segment %q parsed as index", p.Prefix[0].Key)
	}
}

func TestParsePath_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", types.ErrInvalidPath},
		{"empty segment", "envelope..domain", types.ErrInvalidPath},
		{"trailing dot", "subject.", types.ErrInvalidPath},
		{"two quantifiers", "to.$some.x.$every.y", types.ErrTooManyQuantifiers},
		{"too deep", strings.Repeat("a.", types.MaxPathDepth) + "a", types.ErrPathTooDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParsePath(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if !types.IsConfigError(err) {
				t.Errorf("ParsePath(%q) error is not a ConfigError", tt.raw)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	root := MessageValue(newTestMessage())

	tests := []struct {
		name     string
		path     string
		wantKind Kind
		want     Value
	}{
		{"string field", "subject", KindString, String("Quarterly report")},
		{"number field", "size", KindNumber, Number(2048)},
		{"bool field", "hasAttachments", KindBool, Bool(true)},
		{"nested record", "envelope.from.domain", KindString, String("sg1.airforce.mil")},
		{"indexed sequence", "to.1.localPart", KindString, String("daniel")},
		{"sequence", "to", KindSequence, Value{}},
		{"record", "authentication", KindRecord, Value{}},
		{"headers", "headers", KindHeaders, Value{}},
		{"auth result", "authentication.dkim", KindString, String("pass")},
		{"importance", "importance", KindString, String("high")},
		{"header case-insensitive", "headers.x-priority", KindString, String("1")},
		{"header first value", "headers.Received", KindString, String("from a")},
		{"missing header", "headers.List-Id", KindAbsent, Absent()},
		{"absent optional", "replyTo", KindAbsent, Absent()},
		{"absent display name", "to.1.displayName", KindAbsent, Absent()},
		{"index out of range", "to.5.domain", KindAbsent, Absent()},
		{"unknown field", "nope", KindAbsent, Absent()},
		{"past a scalar", "subject.length", KindAbsent, Absent()},
		{"name on sequence", "to.domain", KindAbsent, Absent()},
		{"through absent", "replyTo.0.domain", KindAbsent, Absent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath(%q) error = %v", tt.path, err)
			}
			got := Resolve(root, p.Prefix)
			if got.Kind() != tt.wantKind {
				t.Fatalf("Resolve(%q) kind = %s, want %s", tt.path, got.Kind(), tt.wantKind)
			}
			switch tt.wantKind {
			case KindString, KindNumber, KindBool, KindAbsent:
				if !got.Equal(tt.want) {
					t.Errorf("Resolve(%q) = %#v, want %#v", tt.path, got, tt.want)
				}
			}
		})
	}
}

func TestResolve_NilMessage(t *testing.T) {
	p, _ := ParsePath("subject")
	if got := Resolve(MessageValue(nil), p.Prefix); !got.IsAbsent() {
		t.Errorf("Resolve() on nil message = %#v, want absent", got)
	}
}

// Property-based test: resolution never panics and misses are always Absent
func TestResolve_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := []any{
		"envelope", "from", "to", "cc", "bcc", "replyTo", "importance", "subject",
		"authentication", "headers", "body", "size", "domain", "localPart", "0", "1",
		"7", "dkim", "text", "X-Priority", "nope",
	}

	properties.Property("resolution never panics", prop.ForAll(
		func(parts []string) bool {
			raw := strings.Join(parts, ".")
			if raw == "" {
				return true
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve(%q) panicked: %v", raw, r)
				}
			}()

			p, err := ParsePath(raw)
			if err != nil {
				return types.IsConfigError(err)
			}
			_ = Resolve(MessageValue(newTestMessage()), p.Prefix)
			return true
		},
		gen.SliceOfN(5, gen.OneConstOf(names...)),
	))

	properties.TestingRun(t)
}

func segmentNames(segs []types.PathSegment) []string {
	var out []string
	for _, s := range segs {
		out = append(out, s.String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
