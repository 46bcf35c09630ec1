package predicate

import "time"

// EventRecord is a single ingested user event, the unit the
// event-aggregation primitives (§4.1) count and filter over.
type EventRecord struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
	Timestamp  time.Time              `json:"timestamp"`
}

// TypedContext is what expressions evaluate against: the journey's
// context map, user properties, and (when resuming from an event) the
// triggering event's properties, plus a recent-event window for
// aggregation primitives. Pure data, no I/O.
type TypedContext struct {
	Context        map[string]interface{}
	UserProperties map[string]interface{}
	Event          map[string]interface{}
	RecentEvents   []EventRecord
	Now            time.Time
}

// Get resolves a dotted path ("context.foo.bar", "user.plan",
// "event.sku") against the typed context. Unknown paths
// return (Null, false): callers decide whether that's an error.
func (c *TypedContext) Get(path string) (Value, bool) {
	root, rest, _ := splitFirst(path)
	var m map[string]interface{}
	switch root {
	case "context", "ctx":
		m = c.Context
	case "user":
		m = c.UserProperties
	case "event":
		m = c.Event
	default:
		// Bare dotted path with no recognized root: treat the whole
		// thing as a context lookup, matching how server-authored
		// predicates typically omit the "context." prefix.
		m = c.Context
		rest = path
	}
	return lookup(m, rest)
}

func splitFirst(path string) (head, rest string, ok bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}

func lookup(m map[string]interface{}, path string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	if path == "" {
		return Null(), false
	}
	cur := interface{}(m)
	for _, seg := range splitAll(path) {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return Null(), false
		}
		v, ok := asMap[seg]
		if !ok {
			return Null(), false
		}
		cur = v
	}
	return FromGo(cur), true
}

func splitAll(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}
