// Package address parses mailbox strings into types.EmailAddress.
//
// Accepted forms are a bare address ("user@example.com") and a named address
// ("Some Person <user+tag@example.com>"). Input is trimmed and NFC-normalised
// before parsing so that composed and decomposed forms of the same name
// compare equal in rules.
package address

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

// Parse parses s into an EmailAddress. LocalPart excludes the plus alias, so
// EmailAddress == LocalPart + ["+" + PlusAlias] + "@" + Domain.
// Returns an error wrapping types.ErrInvalidAddress when a '<' has no closing
// '>' or when the local part (with or without the alias) or domain is empty.
func Parse(s string) (types.EmailAddress, error) {
	normalized := norm.NFC.String(strings.TrimSpace(s))

	var displayName, addr string
	if open := strings.IndexByte(normalized, '<'); open >= 0 {
		rest := normalized[open+1:]
		if !strings.HasSuffix(rest, ">") {
			return types.EmailAddress{}, fmt.Errorf("%w: missing closing '>' in %q", types.ErrInvalidAddress, s)
		}
		displayName = strings.TrimSpace(normalized[:open])
		addr = strings.TrimSpace(strings.TrimSuffix(rest, ">"))
	} else {
		addr = normalized
	}

	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return types.EmailAddress{}, fmt.Errorf("%w: missing local part or domain in %q", types.ErrInvalidAddress, s)
	}
	localPart := addr[:at]
	domain := addr[at+1:]

	// The alias is split off the mailbox so rules can match the base local part.
	var plusAlias string
	if plus := strings.IndexByte(localPart, '+'); plus >= 0 {
		localPart, plusAlias = localPart[:plus], localPart[plus+1:]
	}
	if localPart == "" {
		return types.EmailAddress{}, fmt.Errorf("%w: empty local part before '+' in %q", types.ErrInvalidAddress, s)
	}

	return types.EmailAddress{
		EmailAddress: addr,
		LocalPart:    localPart,
		Domain:       domain,
		DisplayName:  displayName,
		PlusAlias:    plusAlias,
	}, nil
}

// ParseOrFallback parses s, substituting types.FallbackEmailAddress when s is
// not a valid address. Envelope senders such as the null reverse-path end up here.
func ParseOrFallback(s string) types.EmailAddress {
	a, err := Parse(s)
	if err != nil {
		a, _ = Parse(types.FallbackEmailAddress)
	}
	return a
}

// FromParts builds an EmailAddress from a header address and display name,
// as produced by MIME address-list parsers.
func FromParts(displayName, addr string) types.EmailAddress {
	a := ParseOrFallback(addr)
	a.DisplayName = norm.NFC.String(strings.TrimSpace(displayName))
	return a
}
