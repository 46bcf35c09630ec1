package action

import "context"

// Noop is an Adapters implementation that performs no real side
// effects: flows "present" instantly with no handle state, delegate
// calls and customer updates succeed silently, purchases always
// succeed, and analytics events are dropped. Useful as the default for
// a devharness run or as a safe zero-value when a host hasn't wired
// real adapters yet.
type Noop struct{}

func (Noop) PresentFlow(ctx context.Context, flowID string, journeyContext map[string]interface{}) (FlowHandle, error) {
	return FlowHandle{FlowID: flowID}, nil
}

func (Noop) CallDelegate(ctx context.Context, message string, payload map[string]interface{}) error {
	return nil
}

func (Noop) Purchase(ctx context.Context, productID string) error { return nil }
func (Noop) Restore(ctx context.Context) error                    { return nil }

func (Noop) UpdateProperties(ctx context.Context, properties map[string]interface{}) error {
	return nil
}

func (Noop) Track(ctx context.Context, eventName string, properties map[string]interface{}) {}

func (Noop) InvokeRemoteAction(ctx context.Context, actionID string, journeyContext map[string]interface{}) (RemoteActionResult, error) {
	return RemoteActionResult{}, nil
}

// NewNoopAdapters returns an Adapters bundle wired entirely to Noop.
func NewNoopAdapters() Adapters {
	n := Noop{}
	return Adapters{
		Flow:         n,
		Delegate:     n,
		Purchase:     n,
		Customer:     n,
		Analytics:    n,
		RemoteAction: n,
	}
}
