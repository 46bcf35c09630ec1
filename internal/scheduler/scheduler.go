// Package scheduler implements the wall-clock timer wheel (C5): it
// wakes paused journeys when their resume_at instant elapses, and
// re-arms every outstanding journey from the store on process start
// (§4.5, §8 P5).
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lyzr/journeyengine/common/telemetry"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/executor"
	"github.com/lyzr/journeyengine/internal/store"
)

// entry is one armed journey in the timer heap. generation lets Arm
// replace a prior arming without a heap removal: a fired entry whose
// generation no longer matches the live one is a stale duplicate and
// is silently dropped (classic lazy-deletion heap pattern).
type entry struct {
	journeyID  string
	at         time.Time
	generation uint64
	index      int
}

type timerHeap []*entry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the in-process timer wheel. It holds no durable state
// of its own: every armed deadline is recoverable from the store via
// Recover, so a scheduler restart never loses a wake-up (§8 P5).
type Scheduler struct {
	store    store.Store
	advancer executor.Advancer
	clock    clock.Clock
	log      *slog.Logger

	// Telemetry is optional; nil traces nothing. Set after New by the
	// process wiring it up, same as Executor.Telemetry.
	Telemetry *telemetry.Telemetry

	mu         sync.Mutex
	heap       timerHeap
	live       map[string]*entry // journeyID -> current live entry
	generation uint64
	wake       chan struct{}
}

// New builds a Scheduler. Call Start to begin firing, and Recover once
// at process start to re-arm paused journeys already in the store.
func New(st store.Store, adv executor.Advancer, clk clock.Clock, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    st,
		advancer: adv,
		clock:    clk,
		log:      log,
		live:     make(map[string]*entry),
		wake:     make(chan struct{}, 1),
	}
}

// Arm schedules (or re-schedules) a wake-up for journeyID at the
// given instant. Idempotent: a prior arming for the same id is
// replaced (§4.5 "arm ... idempotent; replaces any prior arming").
func (s *Scheduler) Arm(journeyID string, at time.Time) {
	s.mu.Lock()
	s.generation++
	e := &entry{journeyID: journeyID, at: at, generation: s.generation}
	s.live[journeyID] = e
	heap.Push(&s.heap, e)
	s.mu.Unlock()
	s.nudge()
}

// Disarm cancels any outstanding wake-up for journeyID. Idempotent.
func (s *Scheduler) Disarm(journeyID string) {
	s.mu.Lock()
	delete(s.live, journeyID)
	s.mu.Unlock()
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Recover scans the store for every paused journey due at or before
// the given instant (pass a far-future instant to re-arm everything)
// and arms each one. Journeys already past their deadline are armed
// at their original resume_at, so Start dispatches them immediately,
// in timestamp order (§4.5).
func (s *Scheduler) Recover(ctx context.Context, before time.Time) error {
	due, err := s.store.ListForResumeBefore(ctx, before)
	if err != nil {
		return err
	}
	for _, j := range due {
		if j.ResumeAt == nil {
			continue
		}
		s.Arm(j.JourneyID.String(), time.Unix(0, *j.ResumeAt).UTC())
	}
	s.log.Info("scheduler recovered paused journeys", "count", len(due))
	return nil
}

// Start runs the timer loop until ctx is cancelled. Each fired
// journey is handed off to the advancer on its own goroutine: the
// timer loop itself never blocks on journey execution (§5,
// "non-blocking hand-offs").
func (s *Scheduler) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		var wait time.Duration
		var due *entry
		if len(s.heap) > 0 {
			next := s.heap[0]
			now := s.now()
			if !next.at.After(now) {
				due = heap.Pop(&s.heap).(*entry)
			} else {
				wait = next.at.Sub(now)
			}
		} else {
			wait = time.Hour
		}
		s.mu.Unlock()

		if due != nil {
			s.fire(ctx, due)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry) {
	s.mu.Lock()
	live, ok := s.live[e.journeyID]
	stale := !ok || live.generation != e.generation
	if ok && live.generation == e.generation {
		delete(s.live, e.journeyID)
	}
	s.mu.Unlock()
	if stale {
		return
	}

	go func(journeyID string) {
		spanCtx, span := s.Telemetry.StartSpan(ctx, "scheduler.fire", attribute.String("journey_id", journeyID))
		defer span.End()
		if err := s.advancer.Advance(spanCtx, journeyID, nil); err != nil {
			s.log.Error("scheduler advance failed", "journey_id", journeyID, "error", err)
		}
	}(e.journeyID)
}

func (s *Scheduler) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

var _ executor.Armer = (*Scheduler)(nil)
