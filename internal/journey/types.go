// Package journey defines the Journey Engine's data model: campaigns,
// journeys, workflow nodes, and the verdicts node execution produces.
package journey

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Journey.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Terminal reports whether the status admits no further node executions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// ExitReason explains why a journey reached a terminal status.
type ExitReason string

const (
	ExitCompleted      ExitReason = "completed"
	ExitConverted      ExitReason = "converted"
	ExitExitedByPolicy ExitReason = "exited_by_policy"
	ExitErrored        ExitReason = "errored"
	ExitSuperseded     ExitReason = "superseded"
	ExitUserDismissed  ExitReason = "user_dismissed"
	ExitOther          ExitReason = "other"
)

// FrequencyPolicy governs whether a fresh campaign trigger spawns a new
// journey for a user that may already have journeys against it.
type FrequencyPolicy string

const (
	FrequencyOnce               FrequencyPolicy = "once"
	FrequencyOneTimePerInterval FrequencyPolicy = "one_time_per_interval"
	FrequencyEveryRematch       FrequencyPolicy = "every_rematch"
	FrequencyUntilConverted     FrequencyPolicy = "until_converted"
)

// WaitCondition is something the event router can match an ingested
// event against to resume a paused journey. Exactly one of EventName or
// SegmentChange is populated for non-IR conditions; Predicate, if
// non-nil, further filters matches.
type WaitCondition struct {
	// PathID identifies the wait-path that registered this condition,
	// used to break ties when multiple conditions match the same event
	// (§4.6: smallest PathID wins) and to know which path to resume.
	PathID string `json:"path_id"`

	EventName     string `json:"event_name,omitempty"`
	SegmentChange string `json:"segment_change,omitempty"`

	// Predicate is the decoded wait-path condition document, the same
	// IR shape branch conditions use (see internal/predicate.Parse). It
	// is evaluated against the triggering event's properties, not the
	// journey's context, so a bare CEL leaf document is how a path
	// filters on the event itself.
	Predicate interface{} `json:"predicate,omitempty"`

	// MaxTimeSeconds is the optional per-path timeout, seconds from
	// registration. Zero means no timeout for this path.
	MaxTimeSeconds int64 `json:"max_time_seconds,omitempty"`
}

// Journey is a per-user instance of a Campaign workflow.
type Journey struct {
	JourneyID  uuid.UUID `json:"journey_id"`
	CampaignID string    `json:"campaign_id"`
	DistinctID string    `json:"distinct_id"`

	Status        Status  `json:"status"`
	CurrentNodeID string  `json:"current_node_id"`
	ResumeAt      *int64  `json:"resume_at,omitempty"` // unix nanos, UTC
	WaitConditions []WaitCondition `json:"wait_conditions,omitempty"`

	// Context is the mutable JSON map carried by the journey and visible
	// to predicates. Node execution mutates a working copy; the
	// executor merges it back atomically on return (§4.4).
	Context map[string]interface{} `json:"context"`

	ExitReason    ExitReason `json:"exit_reason,omitempty"`
	OriginEventID string     `json:"origin_event_id,omitempty"`

	// DelayDeadlines remembers the resume instant computed the first
	// time a time-delay node executed, so a process restart does not
	// recompute (and thus shift) the deadline (§4.2.2).
	DelayDeadlines map[string]int64 `json:"delay_deadlines,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy for safe handoff across goroutines:
// the context map and slices are copied, not shared.
func (j *Journey) Clone() *Journey {
	if j == nil {
		return nil
	}
	out := *j
	out.Context = cloneMap(j.Context)
	if j.WaitConditions != nil {
		out.WaitConditions = append([]WaitCondition(nil), j.WaitConditions...)
	}
	if j.DelayDeadlines != nil {
		out.DelayDeadlines = make(map[string]int64, len(j.DelayDeadlines))
		for k, v := range j.DelayDeadlines {
			out.DelayDeadlines[k] = v
		}
	}
	return &out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Invariant1 checks invariant 1 from §3: a paused journey must have a
// resume target, either a deadline or a non-empty wait set.
func (j *Journey) Invariant1() bool {
	if j.Status != StatusPaused {
		return true
	}
	return j.CurrentNodeID != "" && (j.ResumeAt != nil || len(j.WaitConditions) > 0)
}

// Invariant2 checks invariant 2 from §3: terminal journeys carry no
// schedule and a populated exit reason.
func (j *Journey) Invariant2() bool {
	if !j.Status.Terminal() {
		return true
	}
	return j.ResumeAt == nil && len(j.WaitConditions) == 0 && j.ExitReason != ""
}

// NewJourneyID mints a time-ordered journey id (invariant 4: ids are
// monotonic / creation order reconstructible from the id).
func NewJourneyID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
