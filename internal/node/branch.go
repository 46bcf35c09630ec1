package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// Branch evaluates a condition and follows one of exactly two
// successors (§4.2.1). On evaluation error it takes the false branch,
// the documented default.
type Branch struct {
	Condition    interface{} // decoded predicate document
	TrueNextID   string
	FalseNextID  string
}

// NewBranch builds a Branch from compiled IR data. Next must carry
// exactly two successors: [true-path, false-path].
func NewBranch(data map[string]interface{}, next []string) *Branch {
	b := &Branch{Condition: data["condition"]}
	if len(next) > 0 {
		b.TrueNextID = next[0]
	}
	if len(next) > 1 {
		b.FalseNextID = next[1]
	}
	return b
}

func (b *Branch) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	v, err := deps.Evaluator.Evaluate("branch.condition", b.Condition, tc)
	if err != nil {
		// PredicateEvalError: local default is the false path.
		return journey.Continue(b.FalseNextID), nil
	}
	if v.AsBool() {
		return journey.Continue(b.TrueNextID), nil
	}
	return journey.Continue(b.FalseNextID), nil
}
