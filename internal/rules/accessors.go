// internal/rules/accessors.go
package rules

import (
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Field accessors for the message schema.
 *
 * The message schema is fixed, so every record is exposed through a switch
 * over its field names instead of reflection. Field names match the dotted
 * path vocabulary used in rule files (camelCase, e.g. "envelope.from.domain",
 * "to.$some.plusAlias", "headers.List-Id").
 *
 * Optional fields map to Absent: nil ReplyTo/Importance/Subject and empty
 * DisplayName/PlusAlias.
 */

// MessageValue exposes msg as the root record for path resolution.
func MessageValue(msg *types.EnrichedMessage) Value {
	if msg == nil {
		return Absent()
	}
	return RecordOf(messageRecord{msg})
}

// AddressValue exposes a single address as a record.
func AddressValue(a types.EmailAddress) Value {
	return RecordOf(addressRecord{a})
}

type messageRecord struct {
	m *types.EnrichedMessage
}

func (r messageRecord) Field(name string) Value {
	m := r.m
	switch name {
	case "envelope":
		return RecordOf(envelopeRecord{m.Envelope})
	case "from":
		return SequenceOf(addressList(m.From))
	case "to":
		return SequenceOf(addressList(m.To))
	case "cc":
		return SequenceOf(addressList(m.Cc))
	case "bcc":
		return SequenceOf(addressList(m.Bcc))
	case "replyTo":
		if m.ReplyTo == nil {
			return Absent()
		}
		return SequenceOf(addressList(m.ReplyTo))
	case "importance":
		if m.Importance == nil {
			return Absent()
		}
		return String(string(*m.Importance))
	case "subject":
		return OptionalString(m.Subject)
	case "hasAttachments":
		return Bool(m.HasAttachments)
	case "isMailingList":
		return Bool(m.IsMailingList)
	case "isAutoSubmitted":
		return Bool(m.IsAutoSubmitted)
	case "isReply":
		return Bool(m.IsReply)
	case "authentication":
		return RecordOf(authenticationRecord{m.Authentication})
	case "headers":
		return HeadersOf(m.Headers)
	case "body":
		return RecordOf(bodyRecord{m.Body})
	case "size":
		return Number(float64(m.Size))
	default:
		return Absent()
	}
}

type envelopeRecord struct {
	e types.Envelope
}

func (r envelopeRecord) Field(name string) Value {
	switch name {
	case "from":
		return AddressValue(r.e.From)
	case "to":
		return AddressValue(r.e.To)
	default:
		return Absent()
	}
}

type addressRecord struct {
	a types.EmailAddress
}

func (r addressRecord) Field(name string) Value {
	switch name {
	case "emailAddress":
		return String(r.a.EmailAddress)
	case "localPart":
		return String(r.a.LocalPart)
	case "domain":
		return String(r.a.Domain)
	case "displayName":
		return NonEmptyString(r.a.DisplayName)
	case "plusAlias":
		return NonEmptyString(r.a.PlusAlias)
	default:
		return Absent()
	}
}

type addressList []types.EmailAddress

func (l addressList) Len() int { return len(l) }

func (l addressList) Index(i int) Value {
	if i < 0 || i >= len(l) {
		return Absent()
	}
	return AddressValue(l[i])
}

type authenticationRecord struct {
	a types.Authentication
}

func (r authenticationRecord) Field(name string) Value {
	switch name {
	case "dkim":
		return String(string(r.a.DKIM))
	case "spf":
		return String(string(r.a.SPF))
	case "dmarc":
		return String(string(r.a.DMARC))
	default:
		return Absent()
	}
}

type bodyRecord struct {
	b types.Body
}

func (r bodyRecord) Field(name string) Value {
	switch name {
	case "text":
		return String(r.b.Text)
	case "html":
		return String(r.b.HTML)
	default:
		return Absent()
	}
}
