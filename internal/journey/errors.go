package journey

import "fmt"

// Error kinds from §7. Each wraps an underlying cause so callers can
// still %w through to it while switching on kind with errors.As.
type (
	// PredicateEvalError is raised by the predicate evaluator on an
	// unknown operator, a type mismatch, or a missing variable. Callers
	// apply a local default (branch: false path; wait-until: not yet
	// satisfied) rather than propagate it as a journey error.
	PredicateEvalError struct {
		Expression string
		Cause      error
	}

	// StoreError wraps a journey-store I/O failure. It is not locally
	// defaulted: the executor marks the journey errored and aborts.
	StoreError struct {
		Op    string
		Cause error
	}

	// AdapterError is surfaced by an action adapter (flow, purchase,
	// delegate). Routed to the node's failure edge where one is
	// defined; otherwise the node emits failure analytics and follows
	// its own policy.
	AdapterError struct {
		Adapter string
		Cause   error
	}

	// WorkflowError flags a malformed campaign: missing node id, an
	// unknown successor, or a cycle with no async exit. Detected at
	// registration; the offending campaign is rejected and never
	// reaches execution.
	WorkflowError struct {
		CampaignID string
		Reason     string
	}

	// ClockSkew signals the scheduler fired before its deadline. Non
	// fatal: the node recomputes its verdict from scratch and may
	// re-pause (§4.2.4).
	ClockSkew struct {
		JourneyID string
		Deadline  int64
		Now       int64
	}

	// AlreadyTerminal signals an attempt to advance a journey that has
	// already reached a terminal status. Callers treat it as a no-op
	// with a warning log, not an error condition.
	AlreadyTerminal struct {
		JourneyID string
	}
)

func (e *PredicateEvalError) Error() string {
	return fmt.Sprintf("predicate evaluation error in %q: %v", e.Expression, e.Cause)
}
func (e *PredicateEvalError) Unwrap() error { return e.Cause }

func (e *StoreError) Error() string {
	return fmt.Sprintf("journey store error during %s: %v", e.Op, e.Cause)
}
func (e *StoreError) Unwrap() error { return e.Cause }

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter error: %v", e.Adapter, e.Cause)
}
func (e *AdapterError) Unwrap() error { return e.Cause }

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s rejected: %s", e.CampaignID, e.Reason)
}

func (e *ClockSkew) Error() string {
	return fmt.Sprintf("journey %s: scheduler fired at %d before deadline %d", e.JourneyID, e.Now, e.Deadline)
}

func (e *AlreadyTerminal) Error() string {
	return fmt.Sprintf("journey %s is already terminal", e.JourneyID)
}
