package predicate

import "fmt"

// Kind tags the shape of a Value returned by expression evaluation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
)

// Value is the tagged result of evaluating an IR expression (§4.1):
// bool, number, string, or null.
type Value struct {
	Kind Kind
	B    bool
	N    float64
	S    string
}

func Null() Value          { return Value{Kind: KindNull} }
func Bool(b bool) Value    { return Value{Kind: KindBool, B: b} }
func Number(n float64) Value { return Value{Kind: KindNumber, N: n} }
func String(s string) Value  { return Value{Kind: KindString, S: s} }

// FromGo wraps a plain Go value (as produced by encoding/json) into a
// Value.
func FromGo(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// AsBool coerces a Value to bool per §4.1: non-bool results are
// coerced to false by callers that require a boolean (the caller is
// responsible for the accompanying warning log).
func (v Value) AsBool() bool {
	return v.Kind == KindBool && v.B
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.B)
	case KindNumber:
		return fmt.Sprintf("%v", v.N)
	default:
		return v.S
	}
}
