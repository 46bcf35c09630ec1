package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
	"github.com/lyzr/journeyengine/internal/resolver"
)

// CallDelegate posts a message to the host delegate channel (§4.2.7).
type CallDelegate struct {
	ID      string
	Message string
	Payload map[string]interface{}
	NextID  string
}

func NewCallDelegate(id string, data map[string]interface{}, next []string) *CallDelegate {
	d := &CallDelegate{
		ID:      id,
		Message: getString(data, "message"),
		Payload: getMap(data, "payload"),
	}
	if len(next) > 0 {
		d.NextID = next[0]
	}
	return d
}

func (n *CallDelegate) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	payload := n.Payload
	if resolved, err := resolver.Resolve(n.Payload, tc.Context); err == nil {
		if m, ok := resolved.(map[string]interface{}); ok {
			payload = m
		}
	}
	if err := deps.Adapters.Delegate.CallDelegate(ctx, n.Message, payload); err != nil {
		return journey.Continue(n.NextID), nil
	}
	track(deps, ctx, j, n.ID, analytics.EventDelegateCalled, map[string]interface{}{
		"message": n.Message,
	})
	return journey.Continue(n.NextID), nil
}
