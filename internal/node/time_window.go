package node

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
)

// TimeWindow gates on local time-of-day and, optionally, weekday
// (§4.2.3). The open-interval semantics for start == end are the
// documented default: always-open (§9, open question resolved in
// favor of the pending-test intent).
type TimeWindow struct {
	StartTime  string // "HH:mm"
	EndTime    string // "HH:mm"
	Timezone   string // IANA
	DaysOfWeek map[int]bool // ISO 1-7, Sunday=1; nil/empty means every day
	NextID     string
}

func NewTimeWindow(data map[string]interface{}, next []string) *TimeWindow {
	w := &TimeWindow{
		StartTime: getString(data, "start_time"),
		EndTime:   getString(data, "end_time"),
		Timezone:  getString(data, "timezone"),
	}
	if len(next) > 0 {
		w.NextID = next[0]
	}
	if raw, ok := data["days_of_week"].([]interface{}); ok {
		w.DaysOfWeek = make(map[int]bool, len(raw))
		for _, d := range raw {
			if f, ok := d.(float64); ok {
				w.DaysOfWeek[int(f)] = true
			}
		}
	}
	return w
}

func (w *TimeWindow) Execute(ctx context.Context, j *journey.Journey, tc *predicate.TypedContext, deps *Deps) (journey.Verdict, error) {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := deps.Clock.Now().In(loc)

	if w.inWindow(now) {
		return journey.Continue(w.NextID), nil
	}

	next := w.nextOpenInstant(now)
	return journey.AsyncUntil(next.UnixNano()), nil
}

func (w *TimeWindow) inWindow(now time.Time) bool {
	if !w.weekdayAllowed(now) {
		return false
	}
	start, sOK := parseHHMM(w.StartTime)
	end, eOK := parseHHMM(w.EndTime)
	if !sOK || !eOK {
		return true
	}
	tod := timeOfDay(now)

	if start == end {
		// Documented default: an identical start/end bound is
		// interpreted as an always-open window.
		return true
	}
	if start < end {
		return tod >= start && tod < end
	}
	// Overnight wrap.
	return tod >= start || tod < end
}

func (w *TimeWindow) weekdayAllowed(now time.Time) bool {
	if len(w.DaysOfWeek) == 0 {
		return true
	}
	return w.DaysOfWeek[isoWeekday(now)]
}

// isoWeekday maps a Go time.Weekday (Sunday=0) to the spec's
// Sunday=1..Saturday=7 numbering.
func isoWeekday(t time.Time) int {
	return int(t.Weekday()) + 1
}

// timeOfDay returns minutes since local midnight.
func timeOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func parseHHMM(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	return h*60 + m, true
}

// nextOpenInstant scans forward up to 7 days to find the earliest
// instant at which both the time-of-day window and the weekday filter
// are satisfied. Reached when inWindow is false: either the time of
// day is outside a start != end window, or the weekday filter excludes
// today (which also closes a start == end window for that day).
func (w *TimeWindow) nextOpenInstant(from time.Time) time.Time {
	start, sOK := parseHHMM(w.StartTime)
	if !sOK {
		return from
	}
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for i := 0; i <= 7; i++ {
		candidate := day.AddDate(0, 0, i).Add(time.Duration(start) * time.Minute)
		if candidate.Before(from) {
			continue
		}
		if w.weekdayAllowed(candidate) {
			return candidate
		}
	}
	// Should be unreachable: a 7-day scan always covers a full weekly
	// cycle, so some day satisfies the weekday filter.
	return from.Add(7 * 24 * time.Hour)
}
