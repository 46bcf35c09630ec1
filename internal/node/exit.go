package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// Exit terminates the journey with the given reason (§4.2.11).
type Exit struct {
	Reason journey.ExitReason
}

func NewExit(data map[string]interface{}) *Exit {
	reason := getString(data, "reason")
	if reason == "" {
		reason = string(journey.ExitCompleted)
	}
	return &Exit{Reason: journey.ExitReason(reason)}
}

func (n *Exit) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	return journey.Complete(n.Reason), nil
}
