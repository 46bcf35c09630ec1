package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// UpdateCustomer writes server-side customer properties (§4.2.9).
type UpdateCustomer struct {
	ID         string
	Properties map[string]interface{}
	NextID     string
}

func NewUpdateCustomer(id string, data map[string]interface{}, next []string) *UpdateCustomer {
	u := &UpdateCustomer{ID: id, Properties: data}
	if len(next) > 0 {
		u.NextID = next[0]
	}
	return u
}

func (n *UpdateCustomer) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	if err := deps.Adapters.Customer.UpdateProperties(ctx, n.Properties); err != nil {
		return journey.Continue(n.NextID), nil
	}
	track(deps, ctx, j, n.ID, analytics.EventCustomerUpdated, n.Properties)
	return journey.Continue(n.NextID), nil
}
