// Package node implements the Journey Engine's node library (C2): one
// executable behavior per workflow node kind. Every node is a small
// struct built from its compiled IR data and dispatched through the
// shared Node interface, mirroring how a tagged-variant sum type with
// a trait-like dispatch would look in a language with closed unions
// (§9, "Tagged-variant nodes").
package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/action"
	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// Node is the shared interface every node kind implements. Execute is
// pure with respect to the journey record: it never mutates j
// directly, returning a Verdict whose ContextPatch the executor merges
// back (§4.4).
type Node interface {
	Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error)
}

// Deps bundles everything a node needs beyond its own compiled data:
// the predicate evaluator, the outbound action adapters, the
// analytics bus, and the clock. Built once per engine instance and
// threaded through every Execute call.
type Deps struct {
	Evaluator *predicate.Evaluator
	Adapters  action.Adapters
	Analytics *analytics.Bus
	Clock     clock.Clock
}

func getString(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func getFloat(data map[string]interface{}, key string) (float64, bool) {
	f, ok := data[key].(float64)
	return f, ok
}

func getMap(data map[string]interface{}, key string) map[string]interface{} {
	m, _ := data[key].(map[string]interface{})
	return m
}

func track(deps *Deps, ctx context.Context, j *journey.Journey, nodeID, eventName string, props map[string]interface{}) {
	if deps.Adapters.Analytics != nil {
		enriched := map[string]interface{}{}
		for k, v := range props {
			enriched[k] = v
		}
		enriched["journey_id"] = j.JourneyID.String()
		enriched["campaign_id"] = j.CampaignID
		if nodeID != "" {
			enriched["node_id"] = nodeID
		}
		deps.Adapters.Analytics.Track(ctx, eventName, enriched)
	}
	ts := j.UpdatedAt
	if deps.Clock != nil {
		ts = deps.Clock.Now()
	}
	deps.Analytics.Publish(analytics.Event{
		Timestamp:  ts,
		Name:       eventName,
		JourneyID:  j.JourneyID.String(),
		CampaignID: j.CampaignID,
		NodeID:     nodeID,
		Properties: props,
	})
}
