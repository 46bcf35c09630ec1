// Package analytics provides a publish/subscribe bus for the internal
// analytics events the engine emits ($journey_started,
// $journey_node_executed, $flow_shown, and so on, §6). Subscribers are
// observability consumers (a devharness console, a test assertion, a
// future batching uploader); the bus itself does no network I/O.
package analytics

import (
	"sync"
	"time"
)

// Event names (§6, "Internal analytics emitted").
const (
	EventJourneyStarted     = "$journey_started"
	EventJourneyCompleted   = "$journey_completed"
	EventJourneyErrored     = "$journey_errored"
	EventJourneyNodeRun     = "$journey_node_executed"
	EventFlowShown          = "$flow_shown"
	EventFlowDismissed      = "$flow_dismissed"
	EventDelegateCalled     = "$delegate_called"
	EventCustomerUpdated    = "$customer_updated"
	EventSent               = "$event_sent"
	EventExperimentExposure = "$experiment_exposure"
	EventPurchaseCompleted  = "$purchase_completed"
	EventPurchaseFailed     = "$purchase_failed"
	EventRestoreCompleted   = "$restore_completed"
	EventRestoreFailed      = "$restore_failed"
)

// Event is a single analytics event, annotated with the journey it
// came from (§6: every event carries journey_id, campaign_id, node_id
// when applicable).
type Event struct {
	Timestamp  time.Time      `json:"ts"`
	Name       string         `json:"name"`
	JourneyID  string         `json:"journey_id,omitempty"`
	CampaignID string         `json:"campaign_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Slow subscribers miss
// events rather than stalling publishers, which always run on the
// executor's hot path.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// NewBus creates a new analytics bus ready for use.
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to every subscriber. Safe to call on a nil
// receiver (no-op), so callers that haven't wired a bus don't need
// guard checks.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid leaking the
// channel's registration.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to
// call with an already-unsubscribed channel (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
