// Package registrar implements the campaign registrar (C7): it
// ingests campaign definitions, validates their wire format, compiles
// their workflow into the executor's campaign index, and on every
// ingested user event decides which campaigns to trigger and whether
// the frequency/re-entry policy permits spawning a new journey
// (§4.7).
package registrar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/ir"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/patch"
	"github.com/lyzr/journeyengine/internal/predicate"
	"github.com/lyzr/journeyengine/internal/store"
)

// Spawner is the executor-facing half of C4 the registrar drives: hand
// a freshly-triggered campaign off for immediate advance. Implemented
// by internal/executor.Executor; kept narrow so this package never
// imports executor's full surface.
type Spawner interface {
	Spawn(ctx context.Context, c *journey.Campaign, distinctID, originEventID string) (*journey.Journey, error)
}

// CampaignIndex is the write-side counterpart of executor.CampaignIndex:
// the registrar is the only component that populates it.
type CampaignIndex interface {
	Put(compiled *ir.IR)
}

// Registrar owns the set of published campaigns and their
// registration-time validation.
type Registrar struct {
	store     store.Store
	spawner   Spawner
	index     CampaignIndex
	evaluator *predicate.Evaluator
	analytics *analytics.Bus
	clock     clock.Clock
	log       *slog.Logger

	schema  *jsonschema.Schema
	patches *patch.Store

	mu        sync.RWMutex
	bases     map[string]*journey.Campaign // original, unpatched definitions, for re-materialization
	campaigns map[string]*journey.Campaign // currently published (materialized) definitions
}

// New builds a Registrar. schemaJSON is the JSON Schema document new
// campaign wire payloads must satisfy before compilation (§4.7,
// §6 "Campaign wire format"); pass nil to skip schema validation.
func New(st store.Store, spawner Spawner, index CampaignIndex, evaluator *predicate.Evaluator,
	bus *analytics.Bus, clk clock.Clock, schemaJSON any, log *slog.Logger) (*Registrar, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registrar{
		store:     st,
		spawner:   spawner,
		index:     index,
		evaluator: evaluator,
		analytics: bus,
		clock:     clk,
		log:       log,
		patches:   patch.New(),
		bases:     make(map[string]*journey.Campaign),
		campaigns: make(map[string]*journey.Campaign),
	}
	if schemaJSON != nil {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("campaign.json", schemaJSON); err != nil {
			return nil, fmt.Errorf("registrar: adding campaign schema resource: %w", err)
		}
		schema, err := c.Compile("campaign.json")
		if err != nil {
			return nil, fmt.Errorf("registrar: compiling campaign schema: %w", err)
		}
		r.schema = schema
	}
	return r, nil
}

// ValidateWireFormat checks a raw campaign payload (decoded to
// map[string]interface{} or any JSON-compatible shape) against the
// registered schema, before it is ever unmarshalled into a
// journey.Campaign. Returns a *journey.WorkflowError on mismatch.
func (r *Registrar) ValidateWireFormat(campaignID string, payload any) error {
	if r.schema == nil {
		return nil
	}
	if err := r.schema.Validate(payload); err != nil {
		return &journey.WorkflowError{CampaignID: campaignID, Reason: fmt.Sprintf("wire format validation: %v", err)}
	}
	return nil
}

// Register compiles and publishes a campaign. A malformed workflow
// (missing node, unknown successor, unsafe cycle) is rejected here and
// never reaches execution (§7 WorkflowError). Any patches already
// recorded for this campaign id are materialized in before compiling.
// c is remembered as the unpatched base so a later Patch call
// re-applies the full chain from the original definition, not from
// whatever was last published.
func (r *Registrar) Register(c *journey.Campaign) error {
	materialized, err := r.patches.Materialize(c)
	if err != nil {
		return err
	}
	compiled, err := ir.Compile(materialized)
	if err != nil {
		return err
	}
	r.index.Put(compiled)
	r.mu.Lock()
	r.bases[c.CampaignID] = c
	r.campaigns[c.CampaignID] = materialized
	r.mu.Unlock()
	return nil
}

// Patch records an RFC 6902 patch document against an already
// registered campaign and immediately recompiles + republishes the
// materialized workflow, so any journey that resumes against this
// campaign id next picks up the patched workflow (§4.7 supplement:
// campaign hot-patching).
func (r *Registrar) Patch(campaignID string, operations json.RawMessage) error {
	r.mu.RLock()
	base, ok := r.bases[campaignID]
	r.mu.RUnlock()
	if !ok {
		return &journey.WorkflowError{CampaignID: campaignID, Reason: "cannot patch an unregistered campaign"}
	}
	if err := r.patches.Add(base, operations); err != nil {
		return err
	}
	return r.Register(base)
}

// Unregister removes a campaign from the trigger set. Journeys already
// running against it are unaffected (their compiled IR stays resolvable
// via CampaignIndex); only future triggers stop.
func (r *Registrar) Unregister(campaignID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, campaignID)
	delete(r.bases, campaignID)
	r.patches.Clear(campaignID)
}

// Incoming is an ingested user event, mirroring router.Incoming: C7 and
// C6 both consume the same track() call (§6).
type Incoming struct {
	Name       string
	Properties map[string]interface{}
	DistinctID string
	EventID    string
}

// OnEvent evaluates every registered campaign's trigger against e and
// spawns a new journey for each one whose trigger matches and whose
// frequency policy permits re-entry (§4.7).
func (r *Registrar) OnEvent(ctx context.Context, e Incoming) {
	r.mu.RLock()
	campaigns := make([]*journey.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		campaigns = append(campaigns, c)
	}
	r.mu.RUnlock()

	for _, c := range campaigns {
		if c.Trigger.EventName != e.Name {
			continue
		}
		if c.Trigger.Predicate != "" && r.evaluator != nil {
			tc := &predicate.TypedContext{Event: e.Properties}
			v, err := r.evaluator.EvalCEL(c.Trigger.Predicate, tc)
			if err != nil || !v.AsBool() {
				continue
			}
		}
		allowed, err := r.mayReenter(ctx, c, e.DistinctID)
		if err != nil {
			r.log.Error("registrar frequency check failed", "campaign_id", c.CampaignID, "error", err)
			continue
		}
		if !allowed {
			continue
		}
		r.spawn(ctx, c, e.DistinctID, e.EventID)
	}
}

// spawn hands the journey off to the executor, which persists it and
// publishes $journey_started as part of creating it (the registrar
// does not publish its own copy of that event).
func (r *Registrar) spawn(ctx context.Context, c *journey.Campaign, distinctID, eventID string) {
	if _, err := r.spawner.Spawn(ctx, c, distinctID, eventID); err != nil {
		r.log.Error("registrar spawn failed", "campaign_id", c.CampaignID, "distinct_id", distinctID, "error", err)
	}
}

// mayReenter applies §4.7 step 2, then the lifetime message_limit cap.
func (r *Registrar) mayReenter(ctx context.Context, c *journey.Campaign, distinctID string) (bool, error) {
	count, err := r.store.CountEverCreated(ctx, c.CampaignID, distinctID)
	if err != nil {
		return false, fmt.Errorf("registrar: counting prior journeys: %w", err)
	}
	if c.MessageLimit != nil && count >= *c.MessageLimit {
		return false, nil
	}

	switch c.FrequencyPolicy {
	case journey.FrequencyOnce:
		return count == 0, nil
	case journey.FrequencyOneTimePerInterval:
		if count == 0 {
			return true, nil
		}
		last, err := r.store.LastStarted(ctx, c.CampaignID, distinctID)
		if err != nil {
			return false, fmt.Errorf("registrar: looking up last start: %w", err)
		}
		interval := time.Duration(c.FrequencyInterval) * time.Second
		return r.now().Sub(last) >= interval, nil
	case journey.FrequencyEveryRematch:
		return true, nil
	case journey.FrequencyUntilConverted:
		converted, err := r.store.HasConverted(ctx, c.CampaignID, distinctID)
		if err != nil {
			return false, fmt.Errorf("registrar: checking conversion: %w", err)
		}
		return !converted, nil
	default:
		return false, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: fmt.Sprintf("unknown frequency policy %q", c.FrequencyPolicy)}
	}
}

func (r *Registrar) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now()
}
