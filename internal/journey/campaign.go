package journey

// Trigger identifies the event that starts a campaign's journeys.
type Trigger struct {
	EventName string `json:"event_name" yaml:"event_name"`
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"` // CEL expression over the triggering event
}

// Campaign is the immutable, server-authored workflow template. It
// carries yaml tags alongside json ones so a campaign can be authored
// as a fixture file in tests, not just received over the wire.
type Campaign struct {
	CampaignID  string `json:"campaign_id" yaml:"campaign_id"`
	Name        string `json:"name" yaml:"name"`
	Version     int    `json:"version" yaml:"version"`
	PublishedAt int64  `json:"published_at" yaml:"published_at"` // unix seconds

	Trigger     Trigger `json:"trigger" yaml:"trigger"`
	EntryNodeID string  `json:"entry_node_id" yaml:"entry_node_id"`

	// Workflow maps node-id to its wire-format node; resolved into an
	// index-addressed IR by internal/ir at registration time.
	Workflow map[string]NodeDef `json:"workflow" yaml:"workflow"`

	FrequencyPolicy    FrequencyPolicy `json:"frequency_policy" yaml:"frequency_policy"`
	FrequencyInterval  int64           `json:"frequency_interval,omitempty" yaml:"frequency_interval,omitempty"` // seconds
	MessageLimit       *int            `json:"message_limit,omitempty" yaml:"message_limit,omitempty"`
	Goal               string          `json:"goal,omitempty" yaml:"goal,omitempty"` // CEL predicate
	ExitPolicy         string          `json:"exit_policy,omitempty" yaml:"exit_policy,omitempty"`
	ConversionAnchor   string          `json:"conversion_anchor,omitempty" yaml:"conversion_anchor,omitempty"`
}

// NodeKind enumerates the node kinds the node library (C2) implements.
type NodeKind string

const (
	KindBranch         NodeKind = "branch"
	KindTimeDelay      NodeKind = "time_delay"
	KindTimeWindow     NodeKind = "time_window"
	KindWaitUntil      NodeKind = "wait_until"
	KindShowFlow       NodeKind = "show_flow"
	KindCallDelegate   NodeKind = "call_delegate"
	KindPurchase       NodeKind = "purchase"
	KindRestore        NodeKind = "restore"
	KindUpdateCustomer NodeKind = "update_customer"
	KindSendEvent      NodeKind = "send_event"
	KindExit           NodeKind = "exit"
	KindSubflow        NodeKind = "subflow"
)

// NodeDef is the wire-format representation of a workflow node: a
// discriminated union keyed by Kind, common header fields, plus a
// kind-specific payload left as raw JSON-shaped data for the compiler
// to type-assert during IR construction.
type NodeDef struct {
	ID   string                 `json:"id" yaml:"id"`
	Kind NodeKind               `json:"kind" yaml:"kind"`
	Next []string               `json:"next,omitempty" yaml:"next,omitempty"`
	Data map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}
