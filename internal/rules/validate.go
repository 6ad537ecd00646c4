// internal/rules/validate.go
package rules

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Static rule-set validation.
 *
 * Evaluation reports configuration errors lazily, only for conditions it
 * actually reaches. Validate checks the whole rule set up front so a broken
 * file is rejected at load time rather than on the first unlucky message.
 *
 * Field paths are checked against a sample message in which every optional
 * field is present, every address list answers any index and every header
 * name resolves. A path that resolves to Absent on the sample names no field
 * of the schema. The sample value is then run through Match, which
 * applies the same operator/kind and operand checks as evaluation.
 *
 * All problems are collected with multierr; multierr.Errors(err) lists them.
 */

// Validate checks cfg and returns every problem found, or nil.
func Validate(cfg *types.Config) error {
	if cfg == nil {
		return types.NewConfigError("", "", types.ErrNoRules)
	}

	var errs error
	if len(cfg.ForwardAddresses) == 0 {
		errs = multierr.Append(errs, types.NewConfigError("", "", types.ErrNoForwardAddresses))
	}
	if len(cfg.Rules) == 0 {
		errs = multierr.Append(errs, types.NewConfigError("", "", types.ErrNoRules))
	}

	for i, rule := range cfg.Rules {
		label := ruleLabel(i, rule)
		if rule.When != nil {
			for _, err := range multierr.Errors(ValidateCondition(rule.When)) {
				errs = multierr.Append(errs, fmt.Errorf("rule %s: %w", label, err))
			}
		}
		if err := validateAction(rule.Action); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %s: %w", label, err))
		}
	}
	return errs
}

// ValidateCondition checks a condition tree without a message.
func ValidateCondition(cond types.Condition) error {
	switch c := cond.(type) {
	case nil:
		return types.NewConfigError("", "", types.ErrNilCondition)

	case *types.Predicate:
		if c.Fn == nil {
			return types.NewConfigError(c.Name, "", types.ErrNilPredicate)
		}
		return nil

	case *types.FieldMatch:
		return validateField(c)

	case *types.AndCondition:
		return validateChildren(c.Children)

	case *types.OrCondition:
		return validateChildren(c.Children)

	case *types.NotCondition:
		return ValidateCondition(c.Child)

	default:
		return types.NewConfigError("", "", fmt.Errorf("unsupported condition type %T", cond))
	}
}

// validateChildren checks a combinator's children; an empty list is an error.
func validateChildren(children []types.Condition) error {
	if len(children) == 0 {
		return types.NewConfigError("", "", types.ErrEmptyCombinator)
	}
	var errs error
	for _, child := range children {
		errs = multierr.Append(errs, ValidateCondition(child))
	}
	return errs
}

// validateField checks a FieldMatch against the schema sample.
func validateField(fm *types.FieldMatch) error {
	path, err := ParsePath(fm.Path)
	if err != nil {
		return err
	}
	operand, err := Coerce(fm.Operator, fm.Operand)
	if err != nil {
		return types.NewConfigError(fm.Path, fm.Operator, err)
	}

	sample := Resolve(schemaMessage(), path.Prefix)
	if path.HasQuantifier() {
		if sample.Kind() != KindSequence {
			return types.NewConfigError(fm.Path, fm.Operator,
				fmt.Errorf("%w: %s applied to a %s", types.ErrInvalidPath, path.Quantifier, sample.Kind()))
		}
		sample = Resolve(sample.Seq().Index(0), path.Suffix)
	}
	if sample.IsAbsent() {
		return types.NewConfigError(fm.Path, fm.Operator, types.ErrUnknownField)
	}

	if _, err := Match(sample, fm.Operator, operand); err != nil {
		return kindError(fm, sample, err)
	}
	return nil
}

// validateAction checks that a rule carries a usable action.
func validateAction(action types.Action) error {
	switch a := action.(type) {
	case *types.ForwardAction:
		if len(a.Names) == 0 {
			return types.NewConfigError("", "", types.ErrEmptyForwardList)
		}
		return nil
	case *types.RejectAction:
		return nil
	default:
		return types.NewConfigError("", "", types.ErrMissingAction)
	}
}

// Warnings lists legal but suspicious configuration: duplicate forward names
// (only the first is used) and names that resolve to no address (dropped at
// runtime).
func Warnings(cfg *types.Config) []string {
	var out []string

	seen := make(map[string]bool, len(cfg.ForwardAddresses))
	for _, fa := range cfg.ForwardAddresses {
		if seen[fa.Name] {
			out = append(out, fmt.Sprintf("duplicate forward address name %q: only the first entry is used", fa.Name))
		}
		seen[fa.Name] = true
	}

	for i, rule := range cfg.Rules {
		fwd, ok := rule.Action.(*types.ForwardAction)
		if !ok {
			continue
		}
		for _, name := range fwd.Names {
			if !seen[name] {
				out = append(out, fmt.Sprintf("rule %s forwards to unknown name %q", ruleLabel(i, rule), name))
			}
		}
	}

	if n := cfg.OnError.ForwardOriginalMessageTo; n != "" && !seen[n] {
		out = append(out, fmt.Sprintf("on_error.forward_original_message_to names unknown address %q", n))
	}
	if n := cfg.OnError.SendErrorReportTo; n != "" && !seen[n] {
		out = append(out, fmt.Sprintf("on_error.send_error_report_to names unknown address %q", n))
	}
	return out
}

// schemaMessage returns a message value in which every field of the schema resolves.
func schemaMessage() Value {
	importance := types.ImportanceNormal
	subject := "sample"
	msg := &types.EnrichedMessage{
		Envelope:   types.Envelope{From: schemaAddress, To: schemaAddress},
		Importance: &importance,
		Subject:    &subject,
		Authentication: types.Authentication{
			DKIM: types.AuthNoResult, SPF: types.AuthNoResult, DMARC: types.AuthNoResult,
		},
	}
	return RecordOf(schemaRecord{messageRecord{msg}})
}

var schemaAddress = types.EmailAddress{
	EmailAddress: "sample+alias@example.com",
	LocalPart:    "sample",
	Domain:       "example.com",
	DisplayName:  "Sample",
	PlusAlias:    "alias",
}

type schemaRecord struct {
	messageRecord
}

func (r schemaRecord) Field(name string) Value {
	switch name {
	case "headers":
		return HeadersOf(anyHeader{})
	case "from", "to", "cc", "bcc", "replyTo":
		return SequenceOf(anyIndex{AddressValue(schemaAddress)})
	}
	return r.messageRecord.Field(name)
}

// anyHeader resolves every header name to an empty value.
type anyHeader struct{}

func (anyHeader) Get(string) (string, bool) { return "", true }

// anyIndex resolves every non-negative index to the same element.
type anyIndex struct {
	elem Value
}

func (anyIndex) Len() int { return math.MaxInt }

func (s anyIndex) Index(i int) Value {
	if i < 0 {
		return Absent()
	}
	return s.elem
}
