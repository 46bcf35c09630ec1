package node

import (
	"context"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// TimeDelay pauses a journey for a fixed duration (§4.2.2). The resume
// instant is computed once at first execution and cached on the
// journey's DelayDeadlines so a process restart never recomputes (and
// thus shifts) it.
type TimeDelay struct {
	ID              string
	DurationSeconds float64
	NextID          string
}

func NewTimeDelay(id string, data map[string]interface{}, next []string) *TimeDelay {
	d, _ := getFloat(data, "duration_seconds")
	t := &TimeDelay{ID: id, DurationSeconds: d}
	if len(next) > 0 {
		t.NextID = next[0]
	}
	return t
}

func (n *TimeDelay) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	if n.DurationSeconds <= 0 {
		return journey.Continue(n.NextID), nil
	}

	if deadline, ok := j.DelayDeadlines[n.ID]; ok {
		now := deps.Clock.Now().UnixNano()
		if now < deadline {
			// Clock skew: scheduler fired early, re-pause at the same
			// deadline (§4.2.4).
			return journey.AsyncUntil(deadline), nil
		}
		return journey.Continue(n.NextID), nil
	}

	deadline := deps.Clock.Now().Add(time.Duration(n.DurationSeconds) * time.Second).UnixNano()
	return journey.AsyncUntil(deadline).WithDelayDeadline(n.ID, deadline), nil
}
