package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// ShowFlow presents a remote UI flow through the flow adapter (§4.2.6).
// It does not await flow completion: dismissal/action outcomes arrive
// later as separate events routed back to the journey.
type ShowFlow struct {
	ID         string
	FlowID     string
	Parameters map[string]interface{}
	NextID     string
}

func NewShowFlow(id string, data map[string]interface{}, next []string) *ShowFlow {
	f := &ShowFlow{
		ID:         id,
		FlowID:     getString(data, "flow_id"),
		Parameters: getMap(data, "parameters"),
	}
	if len(next) > 0 {
		f.NextID = next[0]
	}
	return f
}

func (n *ShowFlow) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	_, err := deps.Adapters.Flow.PresentFlow(ctx, n.FlowID, tc.Context)
	if err != nil {
		track(deps, ctx, j, n.ID, analytics.EventFlowDismissed, map[string]interface{}{
			"flow_id": n.FlowID,
			"reason":  "load_error",
		})
		return journey.Continue(n.NextID), nil
	}
	track(deps, ctx, j, n.ID, analytics.EventFlowShown, map[string]interface{}{
		"flow_id": n.FlowID,
	})
	return journey.Continue(n.NextID), nil
}
