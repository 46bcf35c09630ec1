package predicate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/lyzr/journeyengine/internal/journey"
)

// Evaluator evaluates Expr trees against a TypedContext, delegating
// raw CEL leaves (NodeCEL, and legacy bare-string predicates) to
// compiled cel.Program instances cached by expression text. Compiling
// a CEL program is expensive relative to evaluating one; the cache
// keeps repeated triggers of the same campaign predicate cheap.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator builds an Evaluator with a CEL environment exposing the
// typed context's three top-level maps as CEL variables.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("context", cel.DynType),
		cel.Variable("user", cel.DynType),
		cel.Variable("event", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("predicate: building CEL environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[expr]; ok {
		return p, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs[expr] = prog
	return prog, nil
}

// EvalCEL evaluates a raw CEL expression string against the typed
// context, returning a Value. A non-boolean CEL result is preserved
// (numbers and strings are valid leaf results inside a larger tree);
// callers that require a boolean use Value.AsBool.
func (e *Evaluator) EvalCEL(expr string, tc *TypedContext) (Value, error) {
	prog, err := e.program(expr)
	if err != nil {
		return Null(), err
	}
	out, _, err := prog.Eval(map[string]interface{}{
		"context": tc.Context,
		"user":    tc.UserProperties,
		"event":   tc.Event,
	})
	if err != nil {
		return Null(), err
	}
	return fromCEL(out.Value()), nil
}

func fromCEL(v interface{}) Value {
	return FromGo(v)
}

// Eval walks an Expr tree and returns its result. Unknown operators,
// type mismatches, and missing variables return a
// *journey.PredicateEvalError-shaped error (constructed by the caller,
// which knows the originating expression text) via a plain error here;
// Evaluate wraps it.
func (e *Evaluator) Eval(x *Expr, tc *TypedContext) (Value, error) {
	if x == nil {
		return Bool(true), nil
	}
	switch x.Kind {
	case NodeLiteralBool:
		return Bool(x.BoolVal), nil
	case NodeLiteralNumber:
		return Number(x.NumberVal), nil
	case NodeLiteralString:
		return String(x.StringVal), nil
	case NodeVar:
		v, ok := tc.Get(x.Path)
		if !ok {
			return Null(), fmt.Errorf("predicate: variable %q not found", x.Path)
		}
		return v, nil
	case NodeCEL:
		return e.EvalCEL(x.CELExpr, tc)
	case NodeCompare:
		return e.evalCompare(x, tc)
	case NodeLogical:
		return e.evalLogical(x, tc)
	case NodeHas:
		_, ok := tc.Get(x.Path)
		return Bool(ok), nil
	case NodeIn:
		return e.evalIn(x, tc)
	case NodeEventCount:
		return e.evalEventCount(x, tc)
	default:
		return Null(), fmt.Errorf("predicate: unknown node kind %q", x.Kind)
	}
}

// Evaluate parses and evaluates a raw predicate document (see Parse),
// wrapping any failure as a journey.PredicateEvalError so callers can
// apply the node kind's local default instead of erroring the journey.
func (e *Evaluator) Evaluate(exprText string, doc interface{}, tc *TypedContext) (Value, error) {
	x, err := Parse(doc)
	if err != nil {
		return Null(), &journey.PredicateEvalError{Expression: exprText, Cause: err}
	}
	v, err := e.Eval(x, tc)
	if err != nil {
		return Null(), &journey.PredicateEvalError{Expression: exprText, Cause: err}
	}
	return v, nil
}

func (e *Evaluator) evalCompare(x *Expr, tc *TypedContext) (Value, error) {
	if len(x.Children) != 2 {
		return Null(), fmt.Errorf("predicate: compare requires exactly 2 args, got %d", len(x.Children))
	}
	lhs, err := e.Eval(x.Children[0], tc)
	if err != nil {
		return Null(), err
	}
	rhs, err := e.Eval(x.Children[1], tc)
	if err != nil {
		return Null(), err
	}
	return compareValues(x.Op, lhs, rhs)
}

func compareValues(op Op, lhs, rhs Value) (Value, error) {
	switch op {
	case OpEq:
		return Bool(valuesEqual(lhs, rhs)), nil
	case OpNeq:
		return Bool(!valuesEqual(lhs, rhs)), nil
	case OpLt, OpLte, OpGt, OpGte:
		if lhs.Kind != KindNumber || rhs.Kind != KindNumber {
			return Null(), fmt.Errorf("predicate: operator %q requires numeric operands, got %s vs %s", op, lhs, rhs)
		}
		switch op {
		case OpLt:
			return Bool(lhs.N < rhs.N), nil
		case OpLte:
			return Bool(lhs.N <= rhs.N), nil
		case OpGt:
			return Bool(lhs.N > rhs.N), nil
		default:
			return Bool(lhs.N >= rhs.N), nil
		}
	default:
		return Null(), fmt.Errorf("predicate: unknown comparison operator %q", op)
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.B == b.B
	case KindNumber:
		return a.N == b.N
	default:
		return a.S == b.S
	}
}

func (e *Evaluator) evalLogical(x *Expr, tc *TypedContext) (Value, error) {
	switch x.Op {
	case OpAnd:
		for _, c := range x.Children {
			v, err := e.Eval(c, tc)
			if err != nil {
				return Null(), err
			}
			if !v.AsBool() {
				return Bool(false), nil
			}
		}
		return Bool(true), nil
	case OpOr:
		for _, c := range x.Children {
			v, err := e.Eval(c, tc)
			if err != nil {
				return Null(), err
			}
			if v.AsBool() {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case OpNot:
		if len(x.Children) != 1 {
			return Null(), fmt.Errorf("predicate: not requires exactly 1 arg, got %d", len(x.Children))
		}
		v, err := e.Eval(x.Children[0], tc)
		if err != nil {
			return Null(), err
		}
		return Bool(!v.AsBool()), nil
	default:
		return Null(), fmt.Errorf("predicate: unknown logical operator %q", x.Op)
	}
}

func (e *Evaluator) evalIn(x *Expr, tc *TypedContext) (Value, error) {
	if len(x.Children) == 0 {
		return Null(), fmt.Errorf("predicate: in requires a needle")
	}
	needle, err := e.Eval(x.Children[0], tc)
	if err != nil {
		return Null(), err
	}
	for _, h := range x.Children[1:] {
		hv, err := e.Eval(h, tc)
		if err != nil {
			return Null(), err
		}
		if valuesEqual(needle, hv) {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func (e *Evaluator) evalEventCount(x *Expr, tc *TypedContext) (Value, error) {
	var cutoff time.Time
	if x.WindowSecs > 0 {
		cutoff = tc.Now.Add(-time.Duration(x.WindowSecs) * time.Second)
	}
	count := 0
	for _, ev := range tc.RecentEvents {
		if ev.Name != x.EventName {
			continue
		}
		if x.WindowSecs > 0 && ev.Timestamp.Before(cutoff) {
			continue
		}
		if x.EventFilter != nil {
			sub := &TypedContext{
				Context:        tc.Context,
				UserProperties: tc.UserProperties,
				Event:          ev.Properties,
				Now:            tc.Now,
			}
			v, err := e.Eval(x.EventFilter, sub)
			if err != nil {
				return Null(), err
			}
			if !v.AsBool() {
				continue
			}
		}
		count++
	}
	if x.CountCompare == "" {
		return Number(float64(count)), nil
	}
	return compareValues(x.CountCompare, Number(float64(count)), Number(x.CountValue))
}
