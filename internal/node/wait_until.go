package node

import (
	"context"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// WaitPath is one branch of a WaitUntil node.
type WaitPath struct {
	PathID        string
	Predicate     interface{} // decoded IR document, evaluated against current context when non-nil and not event/segment-based
	EventName     string
	SegmentChange string
	MaxTimeSeconds int64
	NextID        string
}

// WaitUntil registers one or more wait-paths and resumes on whichever
// is satisfied first, by event/segment match or by timeout (§4.2.5).
type WaitUntil struct {
	Paths []WaitPath
}

func NewWaitUntil(data map[string]interface{}) *WaitUntil {
	rawPaths, _ := data["paths"].([]interface{})
	w := &WaitUntil{}
	for _, rp := range rawPaths {
		pm, ok := rp.(map[string]interface{})
		if !ok {
			continue
		}
		p := WaitPath{
			PathID:        getString(pm, "id"),
			EventName:     getString(pm, "event_name"),
			SegmentChange: getString(pm, "segment_change"),
			NextID:        getString(pm, "next"),
		}
		if maxTime, ok := getFloat(pm, "max_time"); ok {
			p.MaxTimeSeconds = int64(maxTime)
		}
		if cond, ok := pm["condition"]; ok {
			p.Predicate = cond
		}
		w.Paths = append(w.Paths, p)
	}
	return w
}

// isImmediate reports whether a path is evaluated against the current
// snapshot context rather than an event/segment match.
func (p WaitPath) isImmediate() bool {
	return p.EventName == "" && p.SegmentChange == "" && p.MaxTimeSeconds == 0
}

func (w *WaitUntil) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	// First pass: any immediate (predicate-only, non-event) path that
	// is already true resumes right away. Earliest-declared path wins
	// ties (§9 open question, resolved per the documented ordering).
	for _, p := range w.Paths {
		if !p.isImmediate() {
			continue
		}
		v, err := deps.Evaluator.Evaluate("wait_until."+p.PathID, p.Predicate, tc)
		if err != nil {
			// PredicateEvalError: local default is not-yet-satisfied.
			continue
		}
		if v.AsBool() {
			return journey.Continue(p.NextID), nil
		}
	}

	var conds []journey.WaitCondition
	var deadline *int64
	now := deps.Clock.Now().UnixNano()

	for _, p := range w.Paths {
		if p.EventName != "" || p.SegmentChange != "" {
			conds = append(conds, journey.WaitCondition{
				PathID:         p.PathID,
				EventName:      p.EventName,
				SegmentChange:  p.SegmentChange,
				Predicate:      p.Predicate,
				MaxTimeSeconds: p.MaxTimeSeconds,
			})
		}
		if p.MaxTimeSeconds > 0 {
			d := now + int64(p.MaxTimeSeconds)*int64(time.Second)
			if deadline == nil || d < *deadline {
				deadline = &d
			}
		}
	}

	v := journey.Verdict{Kind: journey.VerdictAsync, WaitConditions: conds}
	if deadline != nil {
		v.ResumeAt = deadline
	}
	return v, nil
}

// Resolve picks the winning path when the journey resumes: either the
// path whose timeout elapsed (earliest max_time) or the path matching
// the triggering event/segment. Used by the executor on resume.
func (w *WaitUntil) Resolve(resumedByTimeout bool, matchedPathID string) *WaitPath {
	if resumedByTimeout {
		var best *WaitPath
		for i := range w.Paths {
			p := &w.Paths[i]
			if p.MaxTimeSeconds == 0 {
				continue
			}
			if best == nil || p.MaxTimeSeconds < best.MaxTimeSeconds {
				best = p
			}
		}
		return best
	}
	for i := range w.Paths {
		if w.Paths[i].PathID == matchedPathID {
			return &w.Paths[i]
		}
	}
	return nil
}
