// Package types provides domain models shared across emailsieve components.
//
// Zero-dependency design: everything except ids.go uses only the standard
// library so the rule engine can be embedded without pulling in transports or
// storage. ID utilities in ids.go import uuid and are isolated in their own file.
//
// The message model is a snapshot: an EnrichedMessage is built once per inbound
// message and never mutated afterwards. Rule evaluation only reads it.
package types

// DecisionID represents a UUIDv7 routing decision identifier.
// String alias keeps JSON and SQL serialization trivial.
type DecisionID string

// Resource limits enforced by the rule engine.
const (
	// MaxPathDepth limits field path segments.
	// The message schema is at most four levels deep; 16 leaves room for header names.
	MaxPathDepth = 16

	// MaxQuantifiers is the number of $some/$every segments allowed in one path.
	MaxQuantifiers = 1

	// MaxInOperandValues bounds the candidate set of an `in` operand.
	MaxInOperandValues = 1024
)

// DefaultRejectReason is returned when no rule matches a message.
const DefaultRejectReason = "Undeliverable"

// FallbackEmailAddress replaces an address that could not be parsed.
const FallbackEmailAddress = "invalid@invalid"
