package journey

// VerdictKind is the outcome of executing a single node (§4.2).
type VerdictKind string

const (
	// VerdictContinue advances immediately to NextNodeIDs without
	// suspending the journey.
	VerdictContinue VerdictKind = "continue"

	// VerdictAsync suspends the journey: either a wall-clock deadline
	// (ResumeAt) or a set of WaitConditions, or both, must be recorded
	// before the executor can safely stop.
	VerdictAsync VerdictKind = "async"

	// VerdictSkip advances to NextNodeIDs without running the node's
	// side effect. The executor returns it for a node whose kind this
	// build does not implement.
	VerdictSkip VerdictKind = "skip"

	// VerdictComplete ends the journey. ExitReason must be set.
	VerdictComplete VerdictKind = "complete"
)

// Verdict is returned by every node's Execute method.
type Verdict struct {
	Kind VerdictKind

	// NextNodeIDs is consulted for Continue and Skip.
	NextNodeIDs []string

	// ResumeAt (unix nanos) and WaitConditions are consulted for
	// Async; at least one must be non-empty (invariant 1, §3).
	ResumeAt       *int64
	WaitConditions []WaitCondition

	// ExitReason is consulted for Complete.
	ExitReason ExitReason

	// ContextPatch merges into the journey's context on return,
	// applied by the executor after the node returns (§4.4): node
	// implementations never mutate the journey directly.
	ContextPatch map[string]interface{}

	// DelayDeadlines merges into the journey's DelayDeadlines map, used
	// by time-delay nodes to cache a once-computed resume instant
	// (§4.2.2) without exposing it as ordinary context data.
	DelayDeadlines map[string]int64
}

func Continue(next ...string) Verdict {
	return Verdict{Kind: VerdictContinue, NextNodeIDs: next}
}

func Skip(next ...string) Verdict {
	return Verdict{Kind: VerdictSkip, NextNodeIDs: next}
}

func Complete(reason ExitReason) Verdict {
	return Verdict{Kind: VerdictComplete, ExitReason: reason}
}

func AsyncUntil(resumeAtNanos int64) Verdict {
	return Verdict{Kind: VerdictAsync, ResumeAt: &resumeAtNanos}
}

func AsyncOn(conds ...WaitCondition) Verdict {
	return Verdict{Kind: VerdictAsync, WaitConditions: conds}
}

// WithPatch attaches a context patch to a verdict, for chaining at the
// call site.
func (v Verdict) WithPatch(patch map[string]interface{}) Verdict {
	v.ContextPatch = patch
	return v
}

// WithDelayDeadline records a cached delay deadline, for chaining at
// the call site.
func (v Verdict) WithDelayDeadline(nodeID string, deadlineNanos int64) Verdict {
	v.DelayDeadlines = map[string]int64{nodeID: deadlineNanos}
	return v
}
