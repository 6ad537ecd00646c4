package address

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.EmailAddress
	}{
		{
			name:  "display name with plus alias",
			input: "Some Person <some.person+alias@some.domain>",
			want: types.EmailAddress{
				EmailAddress: "some.person+alias@some.domain",
				LocalPart:    "some.person",
				Domain:       "some.domain",
				DisplayName:  "Some Person",
				PlusAlias:    "alias",
			},
		},
		{
			name:  "bare address",
			input: "jack@sg1.airforce.mil",
			want: types.EmailAddress{
				EmailAddress: "jack@sg1.airforce.mil",
				LocalPart:    "jack",
				Domain:       "sg1.airforce.mil",
			},
		},
		{
			name:  "surrounding whitespace",
			input: "  jack@sg1.airforce.mil \n",
			want: types.EmailAddress{
				EmailAddress: "jack@sg1.airforce.mil",
				LocalPart:    "jack",
				Domain:       "sg1.airforce.mil",
			},
		},
		{
			name:  "angle brackets without name",
			input: "<teal'c@chulak.example>",
			want: types.EmailAddress{
				EmailAddress: "teal'c@chulak.example",
				LocalPart:    "teal'c",
				Domain:       "chulak.example",
			},
		},
		{
			name:  "split on last at sign",
			input: `"odd@local"@example.com`,
			want: types.EmailAddress{
				EmailAddress: `"odd@local"@example.com`,
				LocalPart:    `"odd@local"`,
				Domain:       "example.com",
			},
		},
		{
			name:  "alias after first plus",
			input: "a+b+c@example.com",
			want: types.EmailAddress{
				EmailAddress: "a+b+c@example.com",
				LocalPart:    "a",
				Domain:       "example.com",
				PlusAlias:    "b+c",
			},
		},
		{
			name:  "decomposed name is composed",
			input: "José <jose@example.com>",
			want: types.EmailAddress{
				EmailAddress: "jose@example.com",
				LocalPart:    "jose",
				Domain:       "example.com",
				DisplayName:  "José",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v, want nil", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing closing bracket", "Some Person <some.person@some.domain"},
		{"no at sign", "nobody"},
		{"empty local part", "@example.com"},
		{"empty domain", "user@"},
		{"alias only", "+tag@example.com"},
		{"alias only with name", "Tag <+tag@example.com>"},
		{"empty string", ""},
		{"null reverse path", "<>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, types.ErrInvalidAddress) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidAddress", tt.input, err)
			}
		})
	}
}

func TestParseOrFallback(t *testing.T) {
	got := ParseOrFallback("broken <x@y")
	if got.EmailAddress != types.FallbackEmailAddress {
		t.Errorf("EmailAddress = %q, want %q", got.EmailAddress, types.FallbackEmailAddress)
	}
	if got.LocalPart != "invalid" || got.Domain != "invalid" {
		t.Errorf("parts = %q/%q, want invalid/invalid", got.LocalPart, got.Domain)
	}

	ok := ParseOrFallback("daniel@abydos.example")
	if ok.EmailAddress != "daniel@abydos.example" {
		t.Errorf("EmailAddress = %q, want daniel@abydos.example", ok.EmailAddress)
	}
}

func TestParseOrFallback_AliasOnly(t *testing.T) {
	if got := ParseOrFallback("+tag@example.com"); got.EmailAddress != types.FallbackEmailAddress {
		t.Errorf("EmailAddress = %q, want %q", got.EmailAddress, types.FallbackEmailAddress)
	}
}

func TestFromParts(t *testing.T) {
	got := FromParts(" Daniel Jackson ", "daniel+archive@abydos.example")
	if got.DisplayName != "Daniel Jackson" {
		t.Errorf("DisplayName = %q, want Daniel Jackson", got.DisplayName)
	}
	if got.PlusAlias != "archive" {
		t.Errorf("PlusAlias = %q, want archive", got.PlusAlias)
	}
}

// Property-based test: a parsed address always reassembles from its parts
func TestParse_PropertyReassembles(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("emailAddress reassembles from localPart, plusAlias and domain", prop.ForAll(
		func(local, alias, domain, name string) bool {
			mailbox := local
			if alias != "" {
				mailbox += "+" + alias
			}
			input := mailbox + "@" + domain
			if name != "" {
				input = name + " <" + input + ">"
			}
			got, err := Parse(input)
			if err != nil {
				return false
			}
			rebuilt := got.LocalPart
			if got.PlusAlias != "" {
				rebuilt += "+" + got.PlusAlias
			}
			if got.EmailAddress != rebuilt+"@"+got.Domain {
				return false
			}
			return got.Domain == domain && got.LocalPart == local && got.PlusAlias == alias && got.DisplayName == name
		},
		gen.RegexMatch(`[a-z0-9][a-z0-9._-]{0,15}`),
		gen.RegexMatch(`([a-z0-9][a-z0-9+]{0,6})?`),
		gen.RegexMatch(`[a-z0-9]{1,10}\.[a-z]{2,4}`),
		gen.RegexMatch(`([A-Z][a-z]{0,8})?`),
	))

	properties.TestingRun(t)
}
