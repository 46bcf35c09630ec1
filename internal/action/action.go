// Package action defines the outbound adapter contracts a host
// application implements: flow presentation, delegate callbacks,
// purchases, customer-property writes, and analytics emission. The
// node library (internal/node) calls these interfaces; it never knows
// how a flow is actually rendered or how a purchase is actually
// billed.
package action

import "context"

// FlowHandle identifies a presented flow so later dismiss/action
// callbacks can be correlated back to it.
type FlowHandle struct {
	FlowID string
}

// FlowAdapter presents a remote UI flow (e.g. a paywall) and reports
// back what the user did with it.
type FlowAdapter interface {
	PresentFlow(ctx context.Context, flowID string, journeyContext map[string]interface{}) (FlowHandle, error)
}

// DelegateAdapter notifies the host application, fire-and-forget.
type DelegateAdapter interface {
	CallDelegate(ctx context.Context, message string, payload map[string]interface{}) error
}

// PurchaseOutcome is the terminal result of a purchase attempt.
type PurchaseOutcome struct {
	Success   bool
	ProductID string
	Reason    string
}

// RestoreOutcome is the terminal result of a restore attempt.
type RestoreOutcome struct {
	Success bool
	Reason  string
}

// PurchaseAdapter drives platform billing. Both methods are
// asynchronous from the node's point of view: the node returns an
// async verdict and waits for the matching internal event
// ($purchase_completed / $purchase_failed / $restore_completed /
// $restore_failed) that the adapter posts once the outcome is known.
type PurchaseAdapter interface {
	Purchase(ctx context.Context, productID string) error
	Restore(ctx context.Context) error
}

// CustomerAdapter writes server-side customer properties.
type CustomerAdapter interface {
	UpdateProperties(ctx context.Context, properties map[string]interface{}) error
}

// AnalyticsAdapter emits a named event, enriched by the caller with
// journey_id/campaign_id/node_id before being handed here.
type AnalyticsAdapter interface {
	Track(ctx context.Context, eventName string, properties map[string]interface{})
}

// RemoteActionResult is the server's response to a subflow/remote
// action invocation: an optional set of context updates to merge into
// the journey.
type RemoteActionResult struct {
	ContextUpdates map[string]interface{}
}

// RemoteActionAdapter invokes a server-side action (§4.2.12, "Subflow
// / remote-action"), posting the current context and awaiting a
// response.
type RemoteActionAdapter interface {
	InvokeRemoteAction(ctx context.Context, actionID string, journeyContext map[string]interface{}) (RemoteActionResult, error)
}

// Adapters bundles the outbound contracts the executor threads
// through to every node.
type Adapters struct {
	Flow         FlowAdapter
	Delegate     DelegateAdapter
	Purchase     PurchaseAdapter
	Customer     CustomerAdapter
	Analytics    AnalyticsAdapter
	RemoteAction RemoteActionAdapter
}
