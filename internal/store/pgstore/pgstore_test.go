package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/journey"
)

// These tests exercise a real Postgres instance, mirroring the
// teacher's own integration tests that assume a live dependency
// rather than mocking the driver. Set
// JOURNEYENGINE_TEST_POSTGRES_DSN to run them; they are skipped
// otherwise so a bare checkout doesn't fail for lack of a database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("JOURNEYENGINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOURNEYENGINE_TEST_POSTGRES_DSN not set, skipping pgstore integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newTestJourney(t *testing.T) *journey.Journey {
	t.Helper()
	return &journey.Journey{
		JourneyID:     journey.NewJourneyID(),
		CampaignID:    "camp_1",
		DistinctID:    "user_1",
		Status:        journey.StatusRunning,
		CurrentNodeID: "entry",
		Context:       map[string]interface{}{"k": "v"},
		CreatedAt:     time.Now().UTC(),
	}
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	j := newTestJourney(t)

	require.NoError(t, s.Save(context.Background(), j))

	got, err := s.Load(context.Background(), j.JourneyID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, j.CampaignID, got.CampaignID)
	require.Equal(t, j.Context["k"], got.Context["k"])
}

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Load(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_ListActiveExcludesTerminal(t *testing.T) {
	s := newTestStore(t)

	running := newTestJourney(t)
	done := newTestJourney(t)
	done.Status = journey.StatusCompleted
	done.ExitReason = journey.ExitCompleted

	require.NoError(t, s.Save(context.Background(), running))
	require.NoError(t, s.Save(context.Background(), done))

	active, err := s.ListActive(context.Background(), running.DistinctID)
	require.NoError(t, err)

	var found bool
	for _, j := range active {
		require.NotEqual(t, done.JourneyID, j.JourneyID)
		if j.JourneyID == running.JourneyID {
			found = true
		}
	}
	require.True(t, found)
}

func TestStore_ListForResumeBefore(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour).UnixNano()
	future := time.Now().Add(time.Hour).UnixNano()

	due := newTestJourney(t)
	due.Status = journey.StatusPaused
	due.ResumeAt = &past

	notDue := newTestJourney(t)
	notDue.Status = journey.StatusPaused
	notDue.ResumeAt = &future

	require.NoError(t, s.Save(context.Background(), due))
	require.NoError(t, s.Save(context.Background(), notDue))

	out, err := s.ListForResumeBefore(context.Background(), time.Now())
	require.NoError(t, err)

	var sawDue, sawNotDue bool
	for _, j := range out {
		if j.JourneyID == due.JourneyID {
			sawDue = true
		}
		if j.JourneyID == notDue.JourneyID {
			sawNotDue = true
		}
	}
	require.True(t, sawDue)
	require.False(t, sawNotDue)
}

func TestStore_FrequencyAccounting(t *testing.T) {
	s := newTestStore(t)

	campaignID := "camp_freq_" + journey.NewJourneyID().String()
	distinctID := "user_freq"

	j1 := newTestJourney(t)
	j1.CampaignID = campaignID
	j1.DistinctID = distinctID
	j2 := newTestJourney(t)
	j2.CampaignID = campaignID
	j2.DistinctID = distinctID
	j2.CreatedAt = j1.CreatedAt.Add(time.Minute)
	j2.Status = journey.StatusCompleted
	j2.ExitReason = journey.ExitConverted

	require.NoError(t, s.Save(context.Background(), j1))
	require.NoError(t, s.Save(context.Background(), j2))

	count, err := s.CountEverCreated(context.Background(), campaignID, distinctID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	converted, err := s.HasConverted(context.Background(), campaignID, distinctID)
	require.NoError(t, err)
	require.True(t, converted)

	last, err := s.LastStarted(context.Background(), campaignID, distinctID)
	require.NoError(t, err)
	require.Equal(t, j2.CreatedAt.Unix(), last.Unix())
}

func TestStore_ListAllRunningOnlyReturnsRunning(t *testing.T) {
	s := newTestStore(t)

	running := newTestJourney(t)
	paused := newTestJourney(t)
	paused.Status = journey.StatusPaused
	resumeAt := time.Now().Add(time.Hour).UnixNano()
	paused.ResumeAt = &resumeAt

	require.NoError(t, s.Save(context.Background(), running))
	require.NoError(t, s.Save(context.Background(), paused))

	out, err := s.ListAllRunning(context.Background())
	require.NoError(t, err)

	var sawRunning, sawPaused bool
	for _, j := range out {
		if j.JourneyID == running.JourneyID {
			sawRunning = true
		}
		if j.JourneyID == paused.JourneyID {
			sawPaused = true
		}
	}
	require.True(t, sawRunning)
	require.False(t, sawPaused)
}

func TestStore_LockIsExclusive(t *testing.T) {
	s := newTestStore(t)

	g1, err := s.Lock(context.Background(), "pg-lock-test-journey")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		g2, err := s.Lock(context.Background(), "pg-lock-test-journey")
		require.NoError(t, err)
		close(acquired)
		g2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock call should not acquire while the first is held")
	case <-time.After(100 * time.Millisecond):
	}

	g1.Release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock call should acquire once the first is released")
	}
}
