package node

import (
	"fmt"

	"github.com/lyzr/journeyengine/internal/ir"
	"github.com/lyzr/journeyengine/internal/journey"
)

// UnsupportedKindError means a campaign references a node kind this
// build does not implement. The executor treats it as a no-op skip
// rather than failing the journey, so a server can push campaigns
// using node kinds ahead of the running build's SDK release.
type UnsupportedKindError struct {
	Kind journey.NodeKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("node: unsupported node kind %q", e.Kind)
}

// Build constructs the executable Node for a compiled IR node.
func Build(n *ir.Node) (Node, error) {
	switch n.Kind {
	case journey.KindBranch:
		return NewBranch(n.Data, n.Dependents), nil
	case journey.KindTimeDelay:
		return NewTimeDelay(n.ID, n.Data, n.Dependents), nil
	case journey.KindTimeWindow:
		return NewTimeWindow(n.Data, n.Dependents), nil
	case journey.KindWaitUntil:
		return NewWaitUntil(n.Data), nil
	case journey.KindShowFlow:
		return NewShowFlow(n.ID, n.Data, n.Dependents), nil
	case journey.KindCallDelegate:
		return NewCallDelegate(n.ID, n.Data, n.Dependents), nil
	case journey.KindPurchase:
		return NewPurchase(n.ID, n.Data, n.Dependents), nil
	case journey.KindRestore:
		return NewRestore(n.ID, n.Dependents), nil
	case journey.KindUpdateCustomer:
		return NewUpdateCustomer(n.ID, n.Data, n.Dependents), nil
	case journey.KindSendEvent:
		return NewSendEvent(n.ID, n.Data, n.Dependents), nil
	case journey.KindExit:
		return NewExit(n.Data), nil
	case journey.KindSubflow:
		return NewSubflow(n.ID, n.Data, n.Dependents), nil
	default:
		return nil, &UnsupportedKindError{Kind: n.Kind}
	}
}
