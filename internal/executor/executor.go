// Package executor implements the journey executor (C4): it drives a
// single journey forward from its current node through synchronous
// node results until the journey pauses, completes, or errors.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/journeyengine/common/telemetry"
	"github.com/lyzr/journeyengine/internal/action"
	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/ir"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/node"
	"github.com/lyzr/journeyengine/internal/predicate"
	"github.com/lyzr/journeyengine/internal/resolver"
	"github.com/lyzr/journeyengine/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"log/slog"
)

// Armer is the scheduler-facing half of C5 the executor drives: arm a
// wall-clock wake-up for a paused journey, or cancel one. Implemented
// by internal/scheduler; kept as a narrow interface here so this
// package never imports it back.
type Armer interface {
	Arm(journeyID string, at time.Time)
	Disarm(journeyID string)
}

// Registrar is the router-facing half of C6: register or clear the
// wait-conditions a paused journey is listening on. Implemented by
// internal/router.
type Registrar interface {
	Register(journeyID string, conditions []journey.WaitCondition)
	Unregister(journeyID string)
}

// CampaignIndex resolves a compiled workflow by campaign id. Campaign
// registration (C7) populates one; the executor only ever reads it.
type CampaignIndex interface {
	CompiledIR(campaignID string) (*ir.IR, error)
}

// MapCampaignIndex is the default in-memory CampaignIndex: campaigns
// are immutable once registered (§5), so a read path needs no lock
// beyond what sync.RWMutex gives a long-lived map.
type MapCampaignIndex struct {
	mu   sync.RWMutex
	irs  map[string]*ir.IR
}

func NewMapCampaignIndex() *MapCampaignIndex {
	return &MapCampaignIndex{irs: make(map[string]*ir.IR)}
}

func (m *MapCampaignIndex) Put(compiled *ir.IR) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irs[compiled.CampaignID] = compiled
}

func (m *MapCampaignIndex) CompiledIR(campaignID string) (*ir.IR, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	compiled, ok := m.irs[campaignID]
	if !ok {
		return nil, fmt.Errorf("executor: no compiled workflow registered for campaign %q", campaignID)
	}
	return compiled, nil
}

// ResumeEvent carries the event that woke a paused journey via C6, so
// the snapshot context the resumed node sees includes it (§4.4 step 3:
// "journey.context ∪ user properties ∪ event properties if resuming
// from an event").
type ResumeEvent struct {
	Name       string
	Properties map[string]interface{}
	PathID     string // which wait-path matched, for wait_until.Resolve
	ByTimeout  bool
}

// Advancer is the narrow view of Executor that the scheduler (C5) and
// event router (C6) need: drive a journey forward, optionally with the
// event that woke it.
type Advancer interface {
	Advance(ctx context.Context, journeyID string, resumeEvent *ResumeEvent) error
}

// Executor drives journeys forward (C4).
type Executor struct {
	Store      store.Store
	Campaigns  CampaignIndex
	Scheduler  Armer
	Router     Registrar
	Analytics  *analytics.Bus
	UserProps  UserPropertySource
	Clock      clock.Clock
	Log        *slog.Logger

	// Telemetry is optional; a nil value traces nothing (StartSpan and
	// the Record* methods are nil-receiver safe), so it can be left
	// unset in tests and set once by cmd/devharness in a running
	// process.
	Telemetry *telemetry.Telemetry

	nodeDeps *node.Deps
}

// UserPropertySource supplies the per-user profile attributes a
// snapshot context exposes as `user.*`. Identity/profile bootstrap is
// out of scope (§1); callers supply any implementation, including a
// no-op one that returns an empty map.
type UserPropertySource interface {
	UserProperties(ctx context.Context, distinctID string) map[string]interface{}
}

// NoopUserProperties always returns an empty profile.
type NoopUserProperties struct{}

func (NoopUserProperties) UserProperties(ctx context.Context, distinctID string) map[string]interface{} {
	return map[string]interface{}{}
}

// New builds an Executor. Evaluator and Adapters are bundled into the
// node.Deps every node execution receives.
func New(st store.Store, campaigns CampaignIndex, sched Armer, router Registrar,
	bus *analytics.Bus, evaluator *predicate.Evaluator, adapters action.Adapters,
	clk clock.Clock, userProps UserPropertySource, log *slog.Logger) *Executor {
	if userProps == nil {
		userProps = NoopUserProperties{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		Store:     st,
		Campaigns: campaigns,
		Scheduler: sched,
		Router:    router,
		Analytics: bus,
		UserProps: userProps,
		Clock:     clk,
		Log:       log,
		nodeDeps: &node.Deps{
			Evaluator: evaluator,
			Adapters:  adapters,
			Analytics: bus,
			Clock:     clk,
		},
	}
}

// Advance drives journeyID forward (§4.4). resumeEvent is non-nil only
// when C6 woke this journey with a matching event; it is nil for a
// C5 timer wake, a freshly-spawned journey (C7), or an administrative
// kick.
func (e *Executor) Advance(ctx context.Context, journeyID string, resumeEvent *ResumeEvent) error {
	var span trace.Span
	ctx, span = e.Telemetry.StartSpan(ctx, "executor.advance", attribute.String("journey_id", journeyID))
	defer span.End()

	guard, err := e.Store.Lock(ctx, journeyID)
	if err != nil {
		return fmt.Errorf("executor: acquiring lock for journey %s: %w", journeyID, err)
	}
	defer guard.Release()

	j, err := e.Store.Load(ctx, journeyID)
	if err != nil {
		return fmt.Errorf("executor: loading journey %s: %w", journeyID, err)
	}
	if j == nil {
		return &journey.AlreadyTerminal{JourneyID: journeyID}
	}
	if j.Status.Terminal() {
		e.Log.Warn("advance called on a terminal journey", "journey_id", journeyID, "status", j.Status)
		return &journey.AlreadyTerminal{JourneyID: journeyID}
	}

	compiled, err := e.Campaigns.CompiledIR(j.CampaignID)
	if err != nil {
		return e.fail(ctx, j, fmt.Errorf("executor: %w", err))
	}

	wasPaused := j.Status == journey.StatusPaused
	firstStep := true

	for {
		n, ok := compiled.Nodes[j.CurrentNodeID]
		if !ok {
			return e.fail(ctx, j, fmt.Errorf("executor: journey %s references unknown node %q", journeyID, j.CurrentNodeID))
		}

		exec, err := node.Build(n)
		if err != nil {
			var unsupported *node.UnsupportedKindError
			if errors.As(err, &unsupported) {
				e.Log.Warn("skipping unsupported node kind, forward-compatibility passthrough",
					"journey_id", journeyID, "node_id", n.ID, "kind", unsupported.Kind)
				verdict := journey.Skip(n.Dependents...)
				e.emitNodeExecuted(ctx, j, n, verdict)
				if len(verdict.NextNodeIDs) == 0 || verdict.NextNodeIDs[0] == "" {
					return e.complete(ctx, j, journey.Complete(journey.ExitCompleted))
				}
				j.CurrentNodeID = verdict.NextNodeIDs[0]
				continue
			}
			return e.fail(ctx, j, fmt.Errorf("executor: building node %q: %w", n.ID, err))
		}

		var verdict journey.Verdict
		if firstStep && wasPaused {
			verdict, err = e.resume(ctx, exec, j, n, resumeEvent)
		} else {
			tc := e.snapshotContext(j, nil)
			verdict, err = exec.Execute(ctx, j, tc, e.nodeDeps)
		}
		if err != nil {
			return e.fail(ctx, j, fmt.Errorf("executor: executing node %q: %w", n.ID, err))
		}
		firstStep = false
		resumeEvent = nil // only the first step of a resumed advance sees it

		e.applyPatch(j, verdict)
		e.emitNodeExecuted(ctx, j, n, verdict)

		switch verdict.Kind {
		case journey.VerdictContinue, journey.VerdictSkip:
			if len(verdict.NextNodeIDs) == 0 || verdict.NextNodeIDs[0] == "" {
				return e.fail(ctx, j, fmt.Errorf("executor: node %q returned continue/skip with no successor", n.ID))
			}
			j.CurrentNodeID = verdict.NextNodeIDs[0]
			continue

		case journey.VerdictAsync:
			return e.pause(ctx, j, verdict)

		case journey.VerdictComplete:
			return e.complete(ctx, j, verdict)

		default:
			return e.fail(ctx, j, fmt.Errorf("executor: node %q returned unknown verdict kind %q", n.ID, verdict.Kind))
		}
	}
}

// resume dispatches the first node execution after a pause. Nodes
// whose async wait is idempotently recomputable (time_delay,
// time_window) just run Execute again (§4.2.4); nodes whose async
// wait picks among several registered conditions (wait_until,
// purchase, restore) resolve the winning path instead of re-executing,
// since re-executing would just re-register the same wait and loop.
func (e *Executor) resume(ctx context.Context, exec node.Node, j *journey.Journey, n *ir.Node, resumeEvent *ResumeEvent) (journey.Verdict, error) {
	switch r := exec.(type) {
	case node.WaitResolver:
		timedOut := resumeEvent == nil || resumeEvent.ByTimeout
		pathID := ""
		if resumeEvent != nil {
			pathID = resumeEvent.PathID
		}
		p := r.Resolve(timedOut, pathID)
		if p == nil {
			return journey.Verdict{}, fmt.Errorf("no wait path resolved on resume of node %q", n.ID)
		}
		return journey.Continue(p.NextID), nil

	case node.OutcomeResolver:
		success := resumeEvent != nil && isSuccessEvent(resumeEvent.Name)
		return journey.Continue(r.Resolve(success)), nil

	default:
		tc := e.snapshotContext(j, resumeEvent)
		return exec.Execute(ctx, j, tc, e.nodeDeps)
	}
}

func isSuccessEvent(name string) bool {
	return name == analytics.EventPurchaseCompleted || name == analytics.EventRestoreCompleted
}

// snapshotContext builds the pure evaluation environment a node sees:
// the journey's context, the user's profile, and (if resuming from an
// event) that event's properties.
func (e *Executor) snapshotContext(j *journey.Journey, resumeEvent *ResumeEvent) *predicate.TypedContext {
	tc := &predicate.TypedContext{
		Context:        j.Context,
		UserProperties: e.UserProps.UserProperties(context.Background(), j.DistinctID),
		Now:            e.now(),
	}
	if resumeEvent != nil {
		tc.Event = resumeEvent.Properties
	}
	return tc
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now()
}

// applyPatch merges a verdict's ContextPatch and DelayDeadlines into
// the journey's working state. This is the "working buffer merged
// atomically" step from §4.4: node implementations never see or
// mutate j.Context directly. The patch keys may be dotted paths (a
// subflow/remote-action's context_updates, §4.2.12), so the merge goes
// through resolver.MergePatch rather than a flat top-level assignment.
func (e *Executor) applyPatch(j *journey.Journey, v journey.Verdict) {
	if len(v.ContextPatch) > 0 {
		merged, err := resolver.MergePatch(j.Context, v.ContextPatch)
		if err != nil {
			e.Log.Error("context patch failed, dropping patch", "journey_id", j.JourneyID.String(), "error", err)
		} else {
			j.Context = merged
		}
	}
	for nodeID, deadline := range v.DelayDeadlines {
		if j.DelayDeadlines == nil {
			j.DelayDeadlines = make(map[string]int64)
		}
		j.DelayDeadlines[nodeID] = deadline
	}
}

func (e *Executor) pause(ctx context.Context, j *journey.Journey, v journey.Verdict) error {
	j.Status = journey.StatusPaused
	j.ResumeAt = v.ResumeAt
	j.WaitConditions = v.WaitConditions

	if err := e.Store.Save(ctx, j); err != nil {
		return e.fail(ctx, j, fmt.Errorf("executor: persisting paused journey %s: %w", j.JourneyID, err))
	}

	if e.Scheduler != nil && v.ResumeAt != nil {
		e.Scheduler.Arm(j.JourneyID.String(), time.Unix(0, *v.ResumeAt).UTC())
	}
	if e.Router != nil && len(v.WaitConditions) > 0 {
		e.Router.Register(j.JourneyID.String(), v.WaitConditions)
	}
	return nil
}

func (e *Executor) complete(ctx context.Context, j *journey.Journey, v journey.Verdict) error {
	j.Status = journey.StatusCompleted
	j.ExitReason = v.ExitReason
	j.ResumeAt = nil
	j.WaitConditions = nil

	if err := e.Store.Save(ctx, j); err != nil {
		return e.fail(ctx, j, fmt.Errorf("executor: persisting completed journey %s: %w", j.JourneyID, err))
	}

	if e.Scheduler != nil {
		e.Scheduler.Disarm(j.JourneyID.String())
	}
	if e.Router != nil {
		e.Router.Unregister(j.JourneyID.String())
	}

	e.Analytics.Publish(analytics.Event{
		Timestamp:  e.now(),
		Name:       analytics.EventJourneyCompleted,
		JourneyID:  j.JourneyID.String(),
		CampaignID: j.CampaignID,
		Properties: map[string]interface{}{"exit_reason": string(v.ExitReason)},
	})
	return nil
}

// fail marks j errored and persists best-effort: a StoreError here is
// logged, not retried — the executor never blocks holding the lock
// (§5).
func (e *Executor) fail(ctx context.Context, j *journey.Journey, cause error) error {
	e.Log.Error("journey execution failed", "journey_id", j.JourneyID.String(), "campaign_id", j.CampaignID, "error", cause)
	e.Telemetry.RecordJourneyError(ctx, j.CampaignID)

	j.Status = journey.StatusErrored
	j.ExitReason = journey.ExitErrored
	j.ResumeAt = nil
	j.WaitConditions = nil

	if err := e.Store.Save(ctx, j); err != nil {
		e.Log.Error("failed to persist errored journey", "journey_id", j.JourneyID.String(), "error", err)
	}
	if e.Scheduler != nil {
		e.Scheduler.Disarm(j.JourneyID.String())
	}
	if e.Router != nil {
		e.Router.Unregister(j.JourneyID.String())
	}

	e.Analytics.Publish(analytics.Event{
		Timestamp:  e.now(),
		Name:       analytics.EventJourneyErrored,
		JourneyID:  j.JourneyID.String(),
		CampaignID: j.CampaignID,
		Properties: map[string]interface{}{"error": cause.Error()},
	})
	return cause
}

func (e *Executor) emitNodeExecuted(ctx context.Context, j *journey.Journey, n *ir.Node, v journey.Verdict) {
	e.Telemetry.RecordNodeExecution(ctx, string(n.Kind), string(v.Kind))
	e.Analytics.Publish(analytics.Event{
		Timestamp:  e.now(),
		Name:       analytics.EventJourneyNodeRun,
		JourneyID:  j.JourneyID.String(),
		CampaignID: j.CampaignID,
		NodeID:     n.ID,
		Properties: map[string]interface{}{
			"node_kind":         string(n.Kind),
			"result":            string(v.Kind),
			"context_snapshot":  j.Context,
		},
	})
}

// Spawn creates and immediately advances a fresh journey for a
// campaign trigger (the handoff from C7 described in §4.7 step 3).
func (e *Executor) Spawn(ctx context.Context, c *journey.Campaign, distinctID, originEventID string) (*journey.Journey, error) {
	var span trace.Span
	ctx, span = e.Telemetry.StartSpan(ctx, "executor.spawn", attribute.String("campaign_id", c.CampaignID))
	defer span.End()

	compiled, err := e.Campaigns.CompiledIR(c.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("executor: spawning journey: %w", err)
	}

	now := e.now()
	j := &journey.Journey{
		JourneyID:     journey.NewJourneyID(),
		CampaignID:    c.CampaignID,
		DistinctID:    distinctID,
		Status:        journey.StatusRunning,
		CurrentNodeID: compiled.EntryNode,
		Context:       map[string]interface{}{},
		OriginEventID: originEventID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Store.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("executor: persisting new journey: %w", err)
	}

	e.Telemetry.RecordJourneySpawn(ctx, c.CampaignID)
	e.Analytics.Publish(analytics.Event{
		Timestamp:  now,
		Name:       analytics.EventJourneyStarted,
		JourneyID:  j.JourneyID.String(),
		CampaignID: c.CampaignID,
		Properties: map[string]interface{}{"distinct_id": distinctID},
	})

	if err := e.Advance(ctx, j.JourneyID.String(), nil); err != nil {
		return j, err
	}
	return j, nil
}

var _ Advancer = (*Executor)(nil)
