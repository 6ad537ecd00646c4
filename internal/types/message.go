package types

// Importance is the normalised value of the Importance header.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceNormal Importance = "normal"
	ImportanceLow    Importance = "low"
)

// ParseImportance maps a lower-cased header value to an Importance.
func ParseImportance(s string) (Importance, bool) {
	switch Importance(s) {
	case ImportanceHigh, ImportanceNormal, ImportanceLow:
		return Importance(s), true
	default:
		return "", false
	}
}

// AuthResult is the outcome of one authentication method.
type AuthResult string

const (
	AuthPass     AuthResult = "pass"
	AuthFail     AuthResult = "fail"
	AuthNoResult AuthResult = "no-result"
)

// EmailAddress is a parsed mailbox. DisplayName and PlusAlias are empty when absent.
// LocalPart is the mailbox without its plus alias:
// EmailAddress == LocalPart + ["+" + PlusAlias] + "@" + Domain.
type EmailAddress struct {
	EmailAddress string `json:"emailAddress"`
	LocalPart    string `json:"localPart"`
	Domain       string `json:"domain"`
	DisplayName  string `json:"displayName,omitempty"`
	PlusAlias    string `json:"plusAlias,omitempty"`
}

// Envelope holds the SMTP-level sender and recipient.
type Envelope struct {
	From EmailAddress `json:"from"`
	To   EmailAddress `json:"to"`
}

// Authentication holds the results parsed from Authentication-Results.
type Authentication struct {
	DKIM  AuthResult `json:"dkim"`
	SPF   AuthResult `json:"spf"`
	DMARC AuthResult `json:"dmarc"`
}

// Body holds the text and HTML renditions of the message body.
type Body struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// EnrichedMessage is the structured view of an inbound message that rules are
// evaluated against. Built once per message; never mutated afterwards.
type EnrichedMessage struct {
	Envelope        Envelope       `json:"envelope"`
	From            []EmailAddress `json:"from"`
	To              []EmailAddress `json:"to"`
	Cc              []EmailAddress `json:"cc"`
	Bcc             []EmailAddress `json:"bcc"`
	ReplyTo         []EmailAddress `json:"replyTo,omitempty"` // nil when absent
	Importance      *Importance    `json:"importance,omitempty"`
	Subject         *string        `json:"subject,omitempty"`
	HasAttachments  bool           `json:"hasAttachments"`
	IsMailingList   bool           `json:"isMailingList"`
	IsAutoSubmitted bool           `json:"isAutoSubmitted"`
	IsReply         bool           `json:"isReply"`
	Authentication  Authentication `json:"authentication"`
	Headers         Headers        `json:"headers"`
	Body            Body           `json:"body"`
	Size            int64          `json:"size"`
}

// Inbound is a message as handed over by the MTA: the SMTP envelope and the
// raw RFC 5322 bytes.
type Inbound struct {
	From string
	To   string
	Raw  []byte
}
