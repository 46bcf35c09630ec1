package node

import (
	"context"
	"testing"

	"github.com/lyzr/journeyengine/internal/action"
	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	ev, err := predicate.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	return &Deps{
		Evaluator: ev,
		Adapters:  action.NewNoopAdapters(),
		Analytics: analytics.NewBus(),
		Clock:     clock.Real{},
	}
}

func TestBranch_TrueAndFalsePaths(t *testing.T) {
	deps := testDeps(t)
	j := &journey.Journey{CampaignID: "c1"}

	cases := []struct {
		name string
		cond bool
		want string
	}{
		{"true path", true, "A"},
		{"false path", false, "B"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBranch(map[string]interface{}{
				"condition": map[string]interface{}{"kind": "literal_bool", "value": tc.cond},
			}, []string{"A", "B"})

			v, err := b.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if v.Kind != journey.VerdictContinue || len(v.NextNodeIDs) != 1 || v.NextNodeIDs[0] != tc.want {
				t.Errorf("got %+v, want continue to %q", v, tc.want)
			}
		})
	}
}

func TestBranch_EvalErrorTakesFalsePath(t *testing.T) {
	deps := testDeps(t)
	j := &journey.Journey{CampaignID: "c1"}

	b := NewBranch(map[string]interface{}{
		"condition": map[string]interface{}{"kind": "nonsense"},
	}, []string{"A", "B"})

	v, err := b.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
	if err != nil {
		t.Fatalf("Execute should locally default rather than error, got: %v", err)
	}
	if v.NextNodeIDs[0] != "B" {
		t.Errorf("expected the false path on eval error, got %v", v.NextNodeIDs)
	}
}
