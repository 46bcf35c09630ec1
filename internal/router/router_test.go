package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/executor"
	"github.com/lyzr/journeyengine/internal/journey"
)

type recordingAdvancer struct {
	mu  sync.Mutex
	got []struct {
		journeyID string
		pathID    string
	}
}

func (r *recordingAdvancer) Advance(ctx context.Context, journeyID string, resumeEvent *executor.ResumeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pathID := ""
	if resumeEvent != nil {
		pathID = resumeEvent.PathID
	}
	r.got = append(r.got, struct {
		journeyID string
		pathID    string
	}{journeyID, pathID})
	return nil
}

func (r *recordingAdvancer) snapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestRouter_MatchesByEventName(t *testing.T) {
	adv := &recordingAdvancer{}
	r := New(adv, nil, nil)

	r.Register("j1", []journey.WaitCondition{{PathID: "p1", EventName: "purchase"}})
	r.OnEvent(context.Background(), Incoming{Name: "purchase"})

	require.Eventually(t, func() bool { return adv.snapshot() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouter_UnmatchedEventNameDoesNotFire(t *testing.T) {
	adv := &recordingAdvancer{}
	r := New(adv, nil, nil)

	r.Register("j1", []journey.WaitCondition{{PathID: "p1", EventName: "purchase"}})
	r.OnEvent(context.Background(), Incoming{Name: "something_else"})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, adv.snapshot())
}

func TestRouter_UnregisterStopsMatching(t *testing.T) {
	adv := &recordingAdvancer{}
	r := New(adv, nil, nil)

	r.Register("j1", []journey.WaitCondition{{PathID: "p1", EventName: "purchase"}})
	r.Unregister("j1")
	r.OnEvent(context.Background(), Incoming{Name: "purchase"})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, adv.snapshot())
}

func TestRouter_SmallestPathIDWinsOnSimultaneousMatch(t *testing.T) {
	adv := &recordingAdvancer{}
	r := New(adv, nil, nil)

	r.Register("j1", []journey.WaitCondition{
		{PathID: "p9", EventName: "purchase"},
		{PathID: "p2", EventName: "purchase"},
	})
	r.OnEvent(context.Background(), Incoming{Name: "purchase"})

	require.Eventually(t, func() bool { return adv.snapshot() == 1 }, time.Second, 5*time.Millisecond)
	adv.mu.Lock()
	defer adv.mu.Unlock()
	require.Equal(t, "p2", adv.got[0].pathID)
}

func TestRouter_ReRegisterReplacesPriorConditions(t *testing.T) {
	adv := &recordingAdvancer{}
	r := New(adv, nil, nil)

	r.Register("j1", []journey.WaitCondition{{PathID: "p1", EventName: "purchase"}})
	r.Register("j1", []journey.WaitCondition{{PathID: "p2", EventName: "restore"}})

	r.OnEvent(context.Background(), Incoming{Name: "purchase"})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, adv.snapshot())

	r.OnEvent(context.Background(), Incoming{Name: "restore"})
	require.Eventually(t, func() bool { return adv.snapshot() == 1 }, time.Second, 5*time.Millisecond)
}
