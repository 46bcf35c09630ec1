package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/journey"
)

type fakeLister struct {
	mu       sync.Mutex
	journeys map[string]*journey.Journey
	saved    []string
}

func newFakeLister(js ...*journey.Journey) *fakeLister {
	f := &fakeLister{journeys: make(map[string]*journey.Journey)}
	for _, j := range js {
		f.journeys[j.JourneyID.String()] = j
	}
	return f
}

func (f *fakeLister) ListAllRunning(ctx context.Context) ([]*journey.Journey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*journey.Journey
	for _, j := range f.journeys {
		if j.Status == journey.StatusRunning {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeLister) Save(ctx context.Context, j *journey.Journey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journeys[j.JourneyID.String()] = j
	f.saved = append(f.saved, j.JourneyID.String())
	return nil
}

type fakeRouter struct {
	mu            sync.Mutex
	unregistered []string
}

func (f *fakeRouter) Unregister(journeyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, journeyID)
}

func runningJourney(updatedAt time.Time) *journey.Journey {
	return &journey.Journey{
		JourneyID:     journey.NewJourneyID(),
		CampaignID:    "camp_1",
		DistinctID:    "user_1",
		Status:        journey.StatusRunning,
		CurrentNodeID: "wait_1",
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
}

func TestDetector_SweepMarksStaleRunningJourneyErrored(t *testing.T) {
	stale := runningJourney(time.Now().UTC().Add(-10 * time.Minute))
	store := newFakeLister(stale)
	router := &fakeRouter{}
	d := New(store, nil, router, nil).WithTimeout(5 * time.Minute)

	require.NoError(t, d.sweep(context.Background()))

	got := store.journeys[stale.JourneyID.String()]
	require.Equal(t, journey.StatusErrored, got.Status)
	require.Equal(t, journey.ExitErrored, got.ExitReason)
	require.Nil(t, got.ResumeAt)
	require.Contains(t, router.unregistered, stale.JourneyID.String())
}

func TestDetector_SweepLeavesFreshRunningJourneyAlone(t *testing.T) {
	fresh := runningJourney(time.Now().UTC())
	store := newFakeLister(fresh)
	d := New(store, nil, nil, nil).WithTimeout(5 * time.Minute)

	require.NoError(t, d.sweep(context.Background()))

	got := store.journeys[fresh.JourneyID.String()]
	require.Equal(t, journey.StatusRunning, got.Status)
	require.Empty(t, store.saved)
}

func TestDetector_SweepIgnoresNonRunningJourneys(t *testing.T) {
	paused := runningJourney(time.Now().UTC().Add(-time.Hour))
	paused.Status = journey.StatusPaused
	store := newFakeLister(paused)
	d := New(store, nil, nil, nil).WithTimeout(5 * time.Minute)

	require.NoError(t, d.sweep(context.Background()))

	require.Empty(t, store.saved)
}

func TestDetector_StartStopsOnContextCancel(t *testing.T) {
	store := newFakeLister()
	d := New(store, nil, nil, nil).WithCheckInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("detector did not stop after context cancellation")
	}
}

func TestDetector_SweepWithNoRunningJourneysIsNoop(t *testing.T) {
	store := newFakeLister()
	d := New(store, nil, nil, nil)
	require.NoError(t, d.sweep(context.Background()))
	require.Empty(t, store.saved)
}
