package enrich

import (
	"strings"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

// ParseAuthenticationResults reduces Authentication-Results header values to
// one outcome per method. A method is pass when any value reports
// "<method>=pass", otherwise fail when any reports "<method>=fail", otherwise
// no-result. Matching is case-insensitive.
func ParseAuthenticationResults(values []string) types.Authentication {
	return types.Authentication{
		DKIM:  methodResult(values, "dkim"),
		SPF:   methodResult(values, "spf"),
		DMARC: methodResult(values, "dmarc"),
	}
}

func methodResult(values []string, method string) types.AuthResult {
	failed := false
	for _, v := range values {
		v = strings.ToLower(v)
		if containsToken(v, method+"=pass") {
			return types.AuthPass
		}
		if containsToken(v, method+"=fail") {
			failed = true
		}
	}
	if failed {
		return types.AuthFail
	}
	return types.AuthNoResult
}

// containsToken finds tok not preceded by a name character, so "dkim=pass" does not
// match inside "arc-dkim=pass" style property names.
func containsToken(s, tok string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], tok)
		if i < 0 {
			return false
		}
		at := start + i
		if at == 0 || !isNameByte(s[at-1]) {
			return true
		}
		start = at + 1
	}
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '-' || b == '.'
}
