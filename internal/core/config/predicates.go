package config

import (
	"strings"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

// DefaultPredicates returns the named predicates available to rules files.
func DefaultPredicates() map[string]types.PredicateFunc {
	return map[string]types.PredicateFunc{
		"is-bounce":         isBounce,
		"self-addressed":    selfAddressed,
		"unauthenticated":   unauthenticated,
		"addressed-to-many": addressedToMany,
	}
}

// isBounce matches delivery status notifications: a null or unparsable
// envelope sender, or mail from a mailer daemon.
func isBounce(m *types.EnrichedMessage) bool {
	if m.Envelope.From.EmailAddress == types.FallbackEmailAddress {
		return true
	}
	local := strings.ToLower(m.Envelope.From.LocalPart)
	return local == "mailer-daemon" || local == "postmaster"
}

// selfAddressed matches mail whose envelope sender and recipient are the same mailbox.
func selfAddressed(m *types.EnrichedMessage) bool {
	return strings.EqualFold(m.Envelope.From.EmailAddress, m.Envelope.To.EmailAddress)
}

// unauthenticated matches mail that passed none of dkim, spf and dmarc.
func unauthenticated(m *types.EnrichedMessage) bool {
	a := m.Authentication
	return a.DKIM != types.AuthPass && a.SPF != types.AuthPass && a.DMARC != types.AuthPass
}

// addressedToMany matches mail with more than ten visible recipients.
func addressedToMany(m *types.EnrichedMessage) bool {
	return len(m.To)+len(m.Cc) > 10
}
