// internal/core/config/rules.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Routing rules file.
 *
 * The rules file is YAML and maps one-to-one onto types.Config:
 *
 *   forward_addresses:
 *     - {name: ops, email: ops@example.com}
 *   rules:
 *     - name: large
 *       when: {field: size, op: gt, value: 10485760}
 *       reject: "Message too large"
 *     - when:
 *         any:
 *           - {field: to.$some.domain, op: equals, value: example.com}
 *           - {predicate: self-addressed}
 *       forward_to: [ops]
 *   on_error:
 *     forward_original_message_to: ops
 *
 * A `when` node is exactly one of field/op/value, all, any, not or predicate.
 * A missing `value` decodes to nil, which only `equals` accepts (absent test).
 * Predicates are looked up by name in the registry passed to ParseRules.
 *
 * Parsing checks the shape of the file only; rules.Validate checks the
 * conditions against the message schema.
 */

type rulesFile struct {
	ForwardAddresses []types.ForwardAddress `yaml:"forward_addresses"`
	Rules            []ruleSpec             `yaml:"rules"`
	OnError          types.OnError          `yaml:"on_error"`
}

type ruleSpec struct {
	Name      string         `yaml:"name"`
	When      *conditionSpec `yaml:"when"`
	ForwardTo []string       `yaml:"forward_to"`
	Reject    *string        `yaml:"reject"`
}

type conditionSpec struct {
	Field     string          `yaml:"field"`
	Op        string          `yaml:"op"`
	Value     any             `yaml:"value"`
	All       []conditionSpec `yaml:"all"`
	Any       []conditionSpec `yaml:"any"`
	Not       *conditionSpec  `yaml:"not"`
	Predicate string          `yaml:"predicate"`
}

// LoadRules reads and parses the rules file at path.
func LoadRules(path string, predicates map[string]types.PredicateFunc) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	cfg, err := ParseRules(data, predicates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseRules decodes a rules document into a routing configuration.
func ParseRules(data []byte, predicates map[string]types.PredicateFunc) (*types.Config, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	cfg := &types.Config{
		ForwardAddresses: file.ForwardAddresses,
		OnError:          file.OnError,
		Rules:            make([]types.Rule, 0, len(file.Rules)),
	}
	for i, spec := range file.Rules {
		rule, err := buildRule(spec, predicates)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg, nil
}

func buildRule(spec ruleSpec, predicates map[string]types.PredicateFunc) (types.Rule, error) {
	rule := types.Rule{Name: spec.Name}

	if spec.When != nil {
		cond, err := buildCondition(*spec.When, predicates, "when")
		if err != nil {
			return types.Rule{}, err
		}
		rule.When = cond
	}

	switch {
	case spec.ForwardTo != nil && spec.Reject != nil:
		return types.Rule{}, types.NewConfigError("", "", types.ErrAmbiguousAction)
	case spec.ForwardTo != nil:
		rule.Action = &types.ForwardAction{Names: spec.ForwardTo}
	case spec.Reject != nil:
		rule.Action = types.RejectWithReason(*spec.Reject)
	default:
		return types.Rule{}, types.NewConfigError("", "", types.ErrMissingAction)
	}
	return rule, nil
}

// buildCondition converts one `when` node; at names the node in errors.
func buildCondition(spec conditionSpec, predicates map[string]types.PredicateFunc, at string) (types.Condition, error) {
	forms := 0
	if spec.Field != "" || spec.Op != "" {
		forms++
	}
	if spec.All != nil {
		forms++
	}
	if spec.Any != nil {
		forms++
	}
	if spec.Not != nil {
		forms++
	}
	if spec.Predicate != "" {
		forms++
	}
	if forms != 1 {
		return nil, types.NewConfigError(at, "", types.ErrMalformedCondition)
	}

	switch {
	case spec.Field != "" || spec.Op != "":
		if spec.Field == "" {
			return nil, types.NewConfigError(at, "", types.ErrInvalidPath)
		}
		op, err := types.ParseOperator(spec.Op)
		if err != nil {
			return nil, types.NewConfigError(spec.Field, types.Operator(spec.Op), types.ErrUnknownOperator)
		}
		return types.Field(spec.Field, op, spec.Value), nil

	case spec.All != nil:
		children, err := buildChildren(spec.All, predicates, at+".all")
		if err != nil {
			return nil, err
		}
		return &types.AndCondition{Children: children}, nil

	case spec.Any != nil:
		children, err := buildChildren(spec.Any, predicates, at+".any")
		if err != nil {
			return nil, err
		}
		return &types.OrCondition{Children: children}, nil

	case spec.Not != nil:
		child, err := buildCondition(*spec.Not, predicates, at+".not")
		if err != nil {
			return nil, err
		}
		return types.Not(child), nil

	default:
		fn, ok := predicates[spec.Predicate]
		if !ok {
			return nil, types.NewConfigError(at, "", fmt.Errorf("%w %q", types.ErrUnknownPredicate, spec.Predicate))
		}
		return types.Func(spec.Predicate, fn), nil
	}
}

// buildChildren converts a combinator's children. An empty list is kept
// empty so validation reports it.
func buildChildren(specs []conditionSpec, predicates map[string]types.PredicateFunc, at string) ([]types.Condition, error) {
	children := make([]types.Condition, 0, len(specs))
	for i, child := range specs {
		cond, err := buildCondition(child, predicates, fmt.Sprintf("%s[%d]", at, i))
		if err != nil {
			return nil, err
		}
		children = append(children, cond)
	}
	return children, nil
}
