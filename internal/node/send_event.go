package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
	"github.com/lyzr/journeyengine/internal/resolver"
)

// SendEvent emits a custom event through the analytics adapter
// (§4.2.10), annotated with journey_id and campaign_id by track().
type SendEvent struct {
	ID         string
	EventName  string
	Properties map[string]interface{}
	NextID     string
}

func NewSendEvent(id string, data map[string]interface{}, next []string) *SendEvent {
	s := &SendEvent{
		ID:         id,
		EventName:  getString(data, "event_name"),
		Properties: getMap(data, "properties"),
	}
	if len(next) > 0 {
		s.NextID = next[0]
	}
	return s
}

func (n *SendEvent) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	properties := n.Properties
	if resolved, err := resolver.Resolve(n.Properties, tc.Context); err == nil {
		if m, ok := resolved.(map[string]interface{}); ok {
			properties = m
		}
	}
	track(deps, ctx, j, n.ID, n.EventName, properties)
	track(deps, ctx, j, n.ID, analytics.EventSent, map[string]interface{}{"event_name": n.EventName})
	return journey.Continue(n.NextID), nil
}
