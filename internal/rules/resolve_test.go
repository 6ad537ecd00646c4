package rules

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

func sg1Addresses() []types.ForwardAddress {
	return []types.ForwardAddress{
		{Name: "carter", Email: "c@sg1.mil"},
		{Name: "oneill", Email: "o@sg1.mil"},
		{Name: "jackson", Email: "j@sg1.mil"},
	}
}

func TestResolveAction(t *testing.T) {
	msg := newTestMessage()

	tests := []struct {
		name string
		cfg  *types.Config
		want types.ResolvedAction
	}{
		{
			name: "forward drops unknown names",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules:            []types.Rule{{Action: types.ForwardTo("carter", "unknown")}},
			},
			want: types.ResolvedAction{Kind: types.ActionForward, Emails: []string{"c@sg1.mil"}, RuleIndex: 0},
		},
		{
			name: "forward preserves order",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules:            []types.Rule{{Name: "team", Action: types.ForwardTo("jackson", "carter")}},
			},
			want: types.ResolvedAction{Kind: types.ActionForward, Emails: []string{"j@sg1.mil", "c@sg1.mil"}, RuleIndex: 0, RuleName: "team"},
		},
		{
			name: "first match wins",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules: []types.Rule{
					{When: alwaysFalse, Action: types.RejectWithReason("A")},
					{Action: types.ForwardTo("carter")},
					{Action: types.RejectWithReason("never")},
				},
			},
			want: types.ResolvedAction{Kind: types.ActionForward, Emails: []string{"c@sg1.mil"}, RuleIndex: 1},
		},
		{
			name: "reject with reason",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules: []types.Rule{
					{Name: "big", When: types.Field("size", types.OpGt, 1024), Action: types.RejectWithReason("too big")},
				},
			},
			want: types.ResolvedAction{Kind: types.ActionReject, Message: "too big", RuleIndex: 0, RuleName: "big"},
		},
		{
			name: "no match rejects by default",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules:            []types.Rule{{When: alwaysFalse, Action: types.ForwardTo("carter")}},
			},
			want: types.Reject(types.DefaultRejectReason),
		},
		{
			name: "all names unknown",
			cfg: &types.Config{
				ForwardAddresses: sg1Addresses(),
				Rules:            []types.Rule{{Action: types.ForwardTo("hammond")}},
			},
			want: types.ResolvedAction{Kind: types.ActionForward, Emails: []string{}, RuleIndex: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAction(tt.cfg, msg)
			if err != nil {
				t.Fatalf("ResolveAction() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveAction() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveAction_DefaultIsMarked(t *testing.T) {
	cfg := &types.Config{
		ForwardAddresses: sg1Addresses(),
		Rules:            []types.Rule{{When: alwaysFalse, Action: types.ForwardTo("carter")}},
	}
	got, err := ResolveAction(cfg, newTestMessage())
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDefault() || got.Message != "Undeliverable" {
		t.Errorf("ResolveAction() = %+v, want default rejection", got)
	}
}

func TestResolveAction_StopsAtFirstMatch(t *testing.T) {
	later := &counter{result: true}
	cfg := &types.Config{
		ForwardAddresses: sg1Addresses(),
		Rules: []types.Rule{
			{When: alwaysTrue, Action: types.ForwardTo("oneill")},
			{When: later.predicate(), Action: types.RejectWithReason("later")},
		},
	}
	if _, err := ResolveAction(cfg, newTestMessage()); err != nil {
		t.Fatal(err)
	}
	if later.calls != 0 {
		t.Errorf("later rule evaluated %d times, want 0", later.calls)
	}
}

func TestResolveAction_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rules   []types.Rule
		wantErr error
	}{
		{
			name:    "config error in condition",
			rules:   []types.Rule{{Name: "broken", When: types.Field("size", types.OpContains, "1"), Action: types.ForwardTo("carter")}},
			wantErr: types.ErrInvalidOperator,
		},
		{
			name:    "empty forward list",
			rules:   []types.Rule{{Action: &types.ForwardAction{}}},
			wantErr: types.ErrEmptyForwardList,
		},
		{
			name:    "missing action",
			rules:   []types.Rule{{}},
			wantErr: types.ErrMissingAction,
		},
		{
			name: "error after a non-matching rule",
			rules: []types.Rule{
				{When: alwaysFalse, Action: types.ForwardTo("carter")},
				{When: types.Field("subject", types.OpMatches, "("), Action: types.ForwardTo("carter")},
			},
			wantErr: types.ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &types.Config{ForwardAddresses: sg1Addresses(), Rules: tt.rules}
			_, err := ResolveAction(cfg, newTestMessage())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveAction() error = %v, want %v", err, tt.wantErr)
			}
			if !types.IsConfigError(err) {
				t.Errorf("ResolveAction() error %v is not a ConfigError", err)
			}
		})
	}
}

func TestResolveForwardNames(t *testing.T) {
	cfg := &types.Config{ForwardAddresses: append(sg1Addresses(), types.ForwardAddress{Name: "carter", Email: "dup@sg1.mil"})}

	got := ResolveForwardNames(cfg, []string{"oneill", "nobody", "carter"})
	want := []string{"o@sg1.mil", "c@sg1.mil"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveForwardNames() = %v, want %v", got, want)
	}

	if got := ResolveForwardNames(cfg, []string{"nobody"}); got == nil || len(got) != 0 {
		t.Errorf("ResolveForwardNames(unknown) = %#v, want empty non-nil", got)
	}
}

// Property-based test: the decision comes from the first rule whose predicate is true
func TestResolveAction_PropertyFirstMatch(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("first true rule decides", prop.ForAll(
		func(outcomes []bool) bool {
			cfg := &types.Config{ForwardAddresses: sg1Addresses()}
			want := -1
			for i, o := range outcomes {
				when := alwaysFalse
				if o {
					when = alwaysTrue
					if want < 0 {
						want = i
					}
				}
				cfg.Rules = append(cfg.Rules, types.Rule{When: when, Action: types.RejectWithReason("r")})
			}

			got, err := ResolveAction(cfg, newTestMessage())
			if err != nil {
				return false
			}
			if want < 0 {
				return got.IsDefault() && got.Message == types.DefaultRejectReason
			}
			return got.RuleIndex == want && got.Message == "r"
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
