package predicate

import "fmt"

// Op enumerates the comparison and logical operators an Expr node may
// carry (§4.1).
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="

	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"

	OpHas Op = "has"
	OpIn  Op = "in"
)

// NodeKind discriminates the shape of an Expr.
type NodeKind string

const (
	NodeLiteralBool   NodeKind = "literal_bool"
	NodeLiteralNumber NodeKind = "literal_number"
	NodeLiteralString NodeKind = "literal_string"
	NodeVar           NodeKind = "var"
	NodeCompare       NodeKind = "compare"
	NodeLogical       NodeKind = "logical"
	NodeHas           NodeKind = "has"
	NodeIn            NodeKind = "in"
	NodeEventCount    NodeKind = "event_count"
	NodeCEL           NodeKind = "cel" // raw CEL expression leaf, delegated to Evaluator
)

// Expr is a node in a predicate's expression tree. The zero value is
// not meaningful; build via Parse.
type Expr struct {
	Kind NodeKind

	// literal_bool / literal_number / literal_string
	BoolVal   bool
	NumberVal float64
	StringVal string

	// var
	Path string

	// compare / logical / has / in: operands
	Op       Op
	Children []*Expr

	// event_count: name of the event to count, an optional filter
	// predicate over each event's properties, and a window in seconds
	// (0 means unbounded / since journey start).
	EventName    string
	EventFilter  *Expr
	WindowSecs   int64
	CountCompare Op
	CountValue   float64

	// cel: raw expression string, compiled and cached by Evaluator.
	CELExpr string
}

// Parse builds an Expr tree from a decoded JSON predicate document
// (object with a "kind" discriminator, as embedded in campaign node
// data or a wait-path predicate field). A bare string is treated as a
// raw CEL expression for backward-compatible authoring.
func Parse(raw interface{}) (*Expr, error) {
	switch v := raw.(type) {
	case nil:
		return &Expr{Kind: NodeLiteralBool, BoolVal: true}, nil
	case string:
		return &Expr{Kind: NodeCEL, CELExpr: v}, nil
	case map[string]interface{}:
		return parseNode(v)
	default:
		return nil, fmt.Errorf("predicate: unsupported document shape %T", raw)
	}
}

func parseNode(m map[string]interface{}) (*Expr, error) {
	kindRaw, _ := m["kind"].(string)
	switch NodeKind(kindRaw) {
	case NodeLiteralBool:
		b, _ := m["value"].(bool)
		return &Expr{Kind: NodeLiteralBool, BoolVal: b}, nil
	case NodeLiteralNumber:
		n, _ := m["value"].(float64)
		return &Expr{Kind: NodeLiteralNumber, NumberVal: n}, nil
	case NodeLiteralString:
		s, _ := m["value"].(string)
		return &Expr{Kind: NodeLiteralString, StringVal: s}, nil
	case NodeVar:
		p, _ := m["path"].(string)
		if p == "" {
			return nil, fmt.Errorf("predicate: var node missing path")
		}
		return &Expr{Kind: NodeVar, Path: p}, nil
	case NodeCompare:
		return parseNary(m, NodeCompare, true)
	case NodeLogical:
		return parseNary(m, NodeLogical, false)
	case NodeHas:
		p, _ := m["path"].(string)
		return &Expr{Kind: NodeHas, Path: p}, nil
	case NodeIn:
		return parseIn(m)
	case NodeEventCount:
		return parseEventCount(m)
	case NodeCEL:
		expr, _ := m["expr"].(string)
		return &Expr{Kind: NodeCEL, CELExpr: expr}, nil
	default:
		return nil, fmt.Errorf("predicate: unknown node kind %q", kindRaw)
	}
}

func parseNary(m map[string]interface{}, kind NodeKind, requireOp bool) (*Expr, error) {
	op, _ := m["op"].(string)
	if requireOp && op == "" {
		return nil, fmt.Errorf("predicate: %s node missing op", kind)
	}
	rawChildren, _ := m["args"].([]interface{})
	children := make([]*Expr, 0, len(rawChildren))
	for _, rc := range rawChildren {
		rm, ok := rc.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("predicate: %s arg is not an object", kind)
		}
		child, err := parseNode(rm)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &Expr{Kind: kind, Op: Op(op), Children: children}, nil
}

func parseIn(m map[string]interface{}) (*Expr, error) {
	needleRaw, ok := m["needle"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("predicate: in node missing needle")
	}
	needle, err := parseNode(needleRaw)
	if err != nil {
		return nil, err
	}
	haystack, _ := m["haystack"].([]interface{})
	children := []*Expr{needle}
	for _, h := range haystack {
		children = append(children, literalFromGo(h))
	}
	return &Expr{Kind: NodeIn, Children: children}, nil
}

func literalFromGo(v interface{}) *Expr {
	switch t := v.(type) {
	case bool:
		return &Expr{Kind: NodeLiteralBool, BoolVal: t}
	case float64:
		return &Expr{Kind: NodeLiteralNumber, NumberVal: t}
	case string:
		return &Expr{Kind: NodeLiteralString, StringVal: t}
	default:
		return &Expr{Kind: NodeLiteralString, StringVal: fmt.Sprintf("%v", t)}
	}
}

func parseEventCount(m map[string]interface{}) (*Expr, error) {
	name, _ := m["event_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("predicate: event_count node missing event_name")
	}
	window, _ := m["window_seconds"].(float64)
	cmp, _ := m["compare"].(string)
	val, _ := m["value"].(float64)

	e := &Expr{
		Kind:         NodeEventCount,
		EventName:    name,
		WindowSecs:   int64(window),
		CountCompare: Op(cmp),
		CountValue:   val,
	}
	if filterRaw, ok := m["filter"].(map[string]interface{}); ok {
		filter, err := parseNode(filterRaw)
		if err != nil {
			return nil, err
		}
		e.EventFilter = filter
	}
	return e, nil
}
