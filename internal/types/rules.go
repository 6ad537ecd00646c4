// internal/types/rules.go
package types

/*
 * Routing configuration and resolution output.
 *
 * Config is loaded once per process and treated as read-only while messages
 * are processed. A Rule pairs an optional Condition with exactly one Action;
 * Action is a closed choice between ForwardAction and RejectAction.
 *
 * ResolvedAction is the only output of rule resolution. Forward emails are
 * already mapped from names to addresses and may be empty.
 */

// ForwardAddress maps a logical name to an email address.
type ForwardAddress struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// Action is what a matching rule asks for.
type Action interface {
	isAction()
}

// ForwardAction forwards to the named forward addresses.
type ForwardAction struct {
	Names []string
}

// RejectAction rejects with a reason.
type RejectAction struct {
	Reason string
}

func (*ForwardAction) isAction() {}
func (*RejectAction) isAction()  {}

// ForwardTo builds a forward action for at least one name.
func ForwardTo(first string, rest ...string) Action {
	return &ForwardAction{Names: append([]string{first}, rest...)}
}

// RejectWithReason builds a reject action.
func RejectWithReason(reason string) Action {
	return &RejectAction{Reason: reason}
}

// Rule is one entry of the ordered rule list. A nil When always matches.
type Rule struct {
	Name   string
	When   Condition
	Action Action
}

// OnError names the forward addresses used when processing a message fails.
type OnError struct {
	ForwardOriginalMessageTo string `json:"forwardOriginalMessageTo,omitempty" yaml:"forward_original_message_to"`
	SendErrorReportTo        string `json:"sendErrorReportTo,omitempty" yaml:"send_error_report_to"`
}

// Config is the routing configuration.
type Config struct {
	ForwardAddresses []ForwardAddress
	Rules            []Rule
	OnError          OnError
}

// LookupAddress returns the email of the first forward address named name.
func (c *Config) LookupAddress(name string) (string, bool) {
	for _, fa := range c.ForwardAddresses {
		if fa.Name == name {
			return fa.Email, true
		}
	}
	return "", false
}

// ActionKind discriminates ResolvedAction.
type ActionKind string

const (
	ActionForward ActionKind = "forward"
	ActionReject  ActionKind = "reject"
)

// ResolvedAction is the routing decision for one message.
type ResolvedAction struct {
	Kind      ActionKind `json:"type"`
	Emails    []string   `json:"emails,omitempty"`  // forward only
	Message   string     `json:"message,omitempty"` // reject only
	RuleIndex int        `json:"ruleIndex"`         // -1 for the default rejection
	RuleName  string     `json:"ruleName,omitempty"`
}

// Forward builds a forward decision.
func Forward(emails []string) ResolvedAction {
	return ResolvedAction{Kind: ActionForward, Emails: emails, RuleIndex: -1}
}

// Reject builds a reject decision.
func Reject(message string) ResolvedAction {
	return ResolvedAction{Kind: ActionReject, Message: message, RuleIndex: -1}
}

// IsDefault reports whether the decision came from rule exhaustion.
func (a ResolvedAction) IsDefault() bool {
	return a.RuleIndex < 0
}
