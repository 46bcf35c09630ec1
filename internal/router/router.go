// Package router implements the event-driven wait mechanism (C6): it
// matches ingested user events against the wait-conditions registered
// by paused journeys and resumes exactly the ones that match (§4.6).
package router

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lyzr/journeyengine/common/telemetry"
	"github.com/lyzr/journeyengine/internal/executor"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// registration is one journey's live wait-conditions.
type registration struct {
	journeyID  string
	conditions []journey.WaitCondition
}

// Router is the in-process event router: a mapping keyed by
// event-name with per-key lists of (journey_id, condition), matching
// the efficiency note in §9.
type Router struct {
	advancer  executor.Advancer
	evaluator *predicate.Evaluator
	log       *slog.Logger

	// Telemetry is optional; nil traces nothing. Set after New by the
	// process wiring it up, same as Executor.Telemetry.
	Telemetry *telemetry.Telemetry

	mu       sync.Mutex
	byEvent  map[string][]*registration
	byJourney map[string]*registration
}

// New builds a Router.
func New(adv executor.Advancer, ev *predicate.Evaluator, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		advancer:  adv,
		evaluator: ev,
		log:       log,
		byEvent:   make(map[string][]*registration),
		byJourney: make(map[string]*registration),
	}
}

// Register indexes journeyID's wait conditions by event name.
// Idempotent: any prior registration for journeyID is replaced
// (§4.6).
func (r *Router) Register(journeyID string, conditions []journey.WaitCondition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(journeyID)

	reg := &registration{journeyID: journeyID, conditions: conditions}
	r.byJourney[journeyID] = reg
	for _, c := range conditions {
		key := c.EventName
		if key == "" {
			key = segmentEventKey(c.SegmentChange)
		}
		r.byEvent[key] = append(r.byEvent[key], reg)
	}
}

// Unregister clears journeyID's wait conditions. Idempotent.
func (r *Router) Unregister(journeyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(journeyID)
}

func (r *Router) unregisterLocked(journeyID string) {
	old, ok := r.byJourney[journeyID]
	if !ok {
		return
	}
	delete(r.byJourney, journeyID)
	for _, c := range old.conditions {
		key := c.EventName
		if key == "" {
			key = segmentEventKey(c.SegmentChange)
		}
		regs := r.byEvent[key]
		for i, reg := range regs {
			if reg == old {
				r.byEvent[key] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
	}
}

// Incoming is an ingested user event.
type Incoming struct {
	Name       string
	Properties map[string]interface{}
	DistinctID string
}

// OnEvent dispatches an Advance for every registered journey whose
// wait-condition matches the event: event-name equality first
// (O(1) index lookup), then predicate evaluation (§4.6). If a single
// journey has multiple conditions matching the same event, the one
// with the smallest PathID wins (§4.6, §9 open question resolved as
// documented: stable lexical ordering over PathID).
func (r *Router) OnEvent(ctx context.Context, e Incoming) {
	r.mu.Lock()
	regs := append([]*registration(nil), r.byEvent[e.Name]...)
	r.mu.Unlock()

	for _, reg := range regs {
		cond, ok := r.bestMatch(reg, e)
		if !ok {
			continue
		}
		r.unregisterForResume(reg.journeyID)
		go func(journeyID string, cond journey.WaitCondition) {
			spanCtx, span := r.Telemetry.StartSpan(ctx, "router.dispatch",
				attribute.String("journey_id", journeyID), attribute.String("event_name", e.Name))
			defer span.End()
			err := r.advancer.Advance(spanCtx, journeyID, &executor.ResumeEvent{
				Name:       e.Name,
				Properties: e.Properties,
				PathID:     cond.PathID,
			})
			if err != nil {
				r.log.Error("router advance failed", "journey_id", journeyID, "error", err)
			}
		}(reg.journeyID, cond)
	}
}

// bestMatch evaluates every condition the event's name matched and
// returns the one with the smallest PathID among those whose optional
// predicate also holds.
func (r *Router) bestMatch(reg *registration, e Incoming) (journey.WaitCondition, bool) {
	var matches []journey.WaitCondition
	for _, c := range reg.conditions {
		key := c.EventName
		if key == "" {
			key = segmentEventKey(c.SegmentChange)
		}
		if key != e.Name {
			continue
		}
		if c.Predicate != nil && r.evaluator != nil {
			tc := &predicate.TypedContext{Event: e.Properties}
			v, err := r.evaluator.Evaluate("router."+c.PathID, c.Predicate, tc)
			if err != nil || !v.AsBool() {
				continue
			}
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return journey.WaitCondition{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PathID < matches[j].PathID })
	return matches[0], true
}

func (r *Router) unregisterForResume(journeyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(journeyID)
}

func segmentEventKey(segmentChange string) string {
	return "$segment_change:" + segmentChange
}

var _ executor.Registrar = (*Router)(nil)
