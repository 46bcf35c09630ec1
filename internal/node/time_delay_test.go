package node

import (
	"context"
	"testing"
	"time"

	"github.com/lyzr/journeyengine/internal/action"
	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

func TestTimeDelay_ZeroDurationContinuesImmediately(t *testing.T) {
	ev, _ := predicate.NewEvaluator()
	deps := &Deps{Evaluator: ev, Adapters: action.NewNoopAdapters(), Analytics: analytics.NewBus(), Clock: clock.Real{}}
	j := &journey.Journey{}

	d := NewTimeDelay("delay1", map[string]interface{}{"duration_seconds": 0.0}, []string{"next"})
	v, err := d.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v.Kind != journey.VerdictContinue || v.NextNodeIDs[0] != "next" {
		t.Errorf("expected immediate continue, got %+v", v)
	}
}

func TestTimeDelay_FirstExecutionPausesAndCachesDeadline(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ev, _ := predicate.NewEvaluator()
	deps := &Deps{Evaluator: ev, Adapters: action.NewNoopAdapters(), Analytics: analytics.NewBus(), Clock: fake}
	j := &journey.Journey{}

	d := NewTimeDelay("delay1", map[string]interface{}{"duration_seconds": 3600.0}, []string{"next"})
	v, err := d.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v.Kind != journey.VerdictAsync || v.ResumeAt == nil {
		t.Fatalf("expected an async verdict with a resume_at, got %+v", v)
	}
	wantDeadline := fake.Now().Add(time.Hour).UnixNano()
	if *v.ResumeAt != wantDeadline {
		t.Errorf("resume_at = %d, want %d", *v.ResumeAt, wantDeadline)
	}
	if v.DelayDeadlines["delay1"] != wantDeadline {
		t.Errorf("expected the deadline to be cached under the node id")
	}
}

func TestTimeDelay_ResumeAfterDeadlineContinues(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 1, 0, 1, 0, time.UTC))
	ev, _ := predicate.NewEvaluator()
	deps := &Deps{Evaluator: ev, Adapters: action.NewNoopAdapters(), Analytics: analytics.NewBus(), Clock: fake}

	cachedDeadline := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC).UnixNano()
	j := &journey.Journey{DelayDeadlines: map[string]int64{"delay1": cachedDeadline}}

	d := NewTimeDelay("delay1", map[string]interface{}{"duration_seconds": 3600.0}, []string{"next"})
	v, err := d.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v.Kind != journey.VerdictContinue || v.NextNodeIDs[0] != "next" {
		t.Errorf("expected continue after the deadline elapsed, got %+v", v)
	}
}

func TestTimeDelay_EarlyWakeRepausesAtSameDeadline(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 59, 0, 0, time.UTC))
	ev, _ := predicate.NewEvaluator()
	deps := &Deps{Evaluator: ev, Adapters: action.NewNoopAdapters(), Analytics: analytics.NewBus(), Clock: fake}

	cachedDeadline := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC).UnixNano()
	j := &journey.Journey{DelayDeadlines: map[string]int64{"delay1": cachedDeadline}}

	d := NewTimeDelay("delay1", map[string]interface{}{"duration_seconds": 3600.0}, []string{"next"})
	v, err := d.Execute(context.Background(), j, &predicate.TypedContext{}, deps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if v.Kind != journey.VerdictAsync || v.ResumeAt == nil || *v.ResumeAt != cachedDeadline {
		t.Errorf("expected a re-pause at the original deadline, got %+v", v)
	}
}
