package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// Subflow invokes a server-side remote action with the current
// context and merges any returned context_updates (§4.2.12, optional
// extension). Synchronous from the engine's point of view: it returns
// continue once the remote call completes.
type Subflow struct {
	ID       string
	ActionID string
	NextID   string
}

func NewSubflow(id string, data map[string]interface{}, next []string) *Subflow {
	s := &Subflow{ID: id, ActionID: getString(data, "action_id")}
	if len(next) > 0 {
		s.NextID = next[0]
	}
	return s
}

func (n *Subflow) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	result, err := deps.Adapters.RemoteAction.InvokeRemoteAction(ctx, n.ActionID, tc.Context)
	if err != nil {
		return journey.Continue(n.NextID), nil
	}
	return journey.Continue(n.NextID).WithPatch(result.ContextUpdates), nil
}
