package node

import (
	"context"

	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// Purchase kicks off a platform purchase and waits for its outcome
// event (§4.2.8). The purchase adapter is asynchronous: the node
// returns async immediately and the executor's event-driven resume
// picks the success or failure successor once $purchase_completed or
// $purchase_failed arrives.
type Purchase struct {
	ID            string
	ProductID     string
	SuccessNextID string
	FailureNextID string
}

func NewPurchase(id string, data map[string]interface{}, next []string) *Purchase {
	p := &Purchase{ID: id, ProductID: getString(data, "product_id")}
	if len(next) > 0 {
		p.SuccessNextID = next[0]
	}
	if len(next) > 1 {
		p.FailureNextID = next[1]
	}
	return p
}

func (n *Purchase) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	if err := deps.Adapters.Purchase.Purchase(ctx, n.ProductID); err != nil {
		track(deps, ctx, j, n.ID, analytics.EventPurchaseFailed, map[string]interface{}{
			"product_id": n.ProductID,
			"reason":     err.Error(),
		})
		return journey.Continue(n.FailureNextID), nil
	}
	return journey.AsyncOn(
		journey.WaitCondition{PathID: n.ID + ":completed", EventName: analytics.EventPurchaseCompleted},
		journey.WaitCondition{PathID: n.ID + ":failed", EventName: analytics.EventPurchaseFailed},
	), nil
}

// Resolve picks the successor once the purchase outcome event arrives.
func (n *Purchase) Resolve(success bool) string {
	if success {
		return n.SuccessNextID
	}
	return n.FailureNextID
}

// Restore is the account-restore counterpart of Purchase (§4.2.8);
// same async-on-outcome-event shape, no product id.
type Restore struct {
	ID            string
	SuccessNextID string
	FailureNextID string
}

func NewRestore(id string, next []string) *Restore {
	r := &Restore{ID: id}
	if len(next) > 0 {
		r.SuccessNextID = next[0]
	}
	if len(next) > 1 {
		r.FailureNextID = next[1]
	}
	return r
}

func (n *Restore) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	if err := deps.Adapters.Purchase.Restore(ctx); err != nil {
		track(deps, ctx, j, n.ID, analytics.EventRestoreFailed, map[string]interface{}{
			"reason": err.Error(),
		})
		return journey.Continue(n.FailureNextID), nil
	}
	return journey.AsyncOn(
		journey.WaitCondition{PathID: n.ID + ":completed", EventName: analytics.EventRestoreCompleted},
		journey.WaitCondition{PathID: n.ID + ":failed", EventName: analytics.EventRestoreFailed},
	), nil
}

func (n *Restore) Resolve(success bool) string {
	if success {
		return n.SuccessNextID
	}
	return n.FailureNextID
}
