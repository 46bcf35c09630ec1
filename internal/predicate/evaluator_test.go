package predicate

import (
	"testing"
	"time"
)

func mustEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	return ev
}

func TestEval_Compare(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"score": 42.0}}

	x := &Expr{
		Kind: NodeCompare,
		Op:   OpGte,
		Children: []*Expr{
			{Kind: NodeVar, Path: "context.score"},
			{Kind: NodeLiteralNumber, NumberVal: 40},
		},
	}
	v, err := ev.Eval(x, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.AsBool() {
		t.Errorf("expected score >= 40 to be true, got %v", v)
	}
}

func TestEval_CompareTypeMismatch(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"name": "ada"}}

	x := &Expr{
		Kind: NodeCompare,
		Op:   OpLt,
		Children: []*Expr{
			{Kind: NodeVar, Path: "context.name"},
			{Kind: NodeLiteralNumber, NumberVal: 1},
		},
	}
	if _, err := ev.Eval(x, tc); err == nil {
		t.Fatal("expected a type-mismatch error comparing a string to a number")
	}
}

func TestEval_Logical(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"a": true, "b": false}}

	and := &Expr{Kind: NodeLogical, Op: OpAnd, Children: []*Expr{
		{Kind: NodeVar, Path: "context.a"},
		{Kind: NodeVar, Path: "context.b"},
	}}
	v, err := ev.Eval(and, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if v.AsBool() {
		t.Error("expected a and b to be false")
	}

	not := &Expr{Kind: NodeLogical, Op: OpNot, Children: []*Expr{
		{Kind: NodeVar, Path: "context.b"},
	}}
	v, err = ev.Eval(not, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.AsBool() {
		t.Error("expected not b to be true")
	}
}

func TestEval_Has(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"plan": "pro"}}

	present, err := ev.Eval(&Expr{Kind: NodeHas, Path: "context.plan"}, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !present.AsBool() {
		t.Error("expected has(context.plan) to be true")
	}

	absent, err := ev.Eval(&Expr{Kind: NodeHas, Path: "context.missing"}, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if absent.AsBool() {
		t.Error("expected has(context.missing) to be false")
	}
}

func TestEval_In(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"country": "US"}}

	x := &Expr{Kind: NodeIn, Children: []*Expr{
		{Kind: NodeVar, Path: "context.country"},
		{Kind: NodeLiteralString, StringVal: "CA"},
		{Kind: NodeLiteralString, StringVal: "US"},
	}}
	v, err := ev.Eval(x, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.AsBool() {
		t.Error("expected US in [CA, US] to be true")
	}
}

func TestEval_EventCount(t *testing.T) {
	ev := mustEvaluator(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tc := &TypedContext{
		Now: now,
		RecentEvents: []EventRecord{
			{Name: "app_open", Timestamp: now.Add(-10 * time.Minute)},
			{Name: "app_open", Timestamp: now.Add(-2 * time.Hour)},
			{Name: "purchase", Timestamp: now.Add(-5 * time.Minute)},
		},
	}

	x := &Expr{
		Kind:         NodeEventCount,
		EventName:    "app_open",
		WindowSecs:   3600,
		CountCompare: OpGte,
		CountValue:   1,
	}
	v, err := ev.Eval(x, tc)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.AsBool() {
		t.Error("expected at least one app_open in the last hour")
	}
}

func TestEvaluate_WrapsPredicateEvalError(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{}

	_, err := ev.Evaluate("bad-doc", map[string]interface{}{"kind": "nonsense"}, tc)
	if err == nil {
		t.Fatal("expected an error for an unknown node kind")
	}
}

func TestEvalCEL_ReadsContextVariable(t *testing.T) {
	ev := mustEvaluator(t)
	tc := &TypedContext{Context: map[string]interface{}{"plan": "pro"}}

	v, err := ev.EvalCEL(`context.plan == "pro"`, tc)
	if err != nil {
		t.Fatalf("EvalCEL failed: %v", err)
	}
	if !v.AsBool() {
		t.Error("expected context.plan == \"pro\" to be true")
	}
}

func TestProgramCache_ReusesCompiledExpression(t *testing.T) {
	ev := mustEvaluator(t)
	const expr = `context.x > 0`

	p1, err := ev.program(expr)
	if err != nil {
		t.Fatalf("program failed: %v", err)
	}
	p2, err := ev.program(expr)
	if err != nil {
		t.Fatalf("program failed: %v", err)
	}
	// Same underlying program pointer on the second call proves the
	// compile step was skipped (the RWMutex-guarded cache hit).
	if p1 != p2 {
		t.Error("expected the second lookup to return the cached program")
	}
}

func TestParse_BareStringIsCELLeaf(t *testing.T) {
	x, err := Parse(`context.score > 10`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if x.Kind != NodeCEL {
		t.Errorf("expected a CEL leaf node, got %v", x.Kind)
	}
}

func TestParse_NilIsTrueLiteral(t *testing.T) {
	x, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if x.Kind != NodeLiteralBool || !x.BoolVal {
		t.Errorf("expected a true literal for a nil predicate document, got %+v", x)
	}
}
