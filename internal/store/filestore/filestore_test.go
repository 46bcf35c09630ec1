package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/journey"
)

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

func TestFileStore_SaveThenLoadRoundTrips(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	j := newTestJourney(t)
	require.NoError(t, fs.Save(context.Background(), j))

	got, err := fs.Load(context.Background(), j.JourneyID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, j.CampaignID, got.CampaignID)
	require.Equal(t, j.Context["k"], got.Context["k"])
}

func TestFileStore_LoadMissingReturnsNil(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	got, err := fs.Load(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileStore_RehydratesFromDisk(t *testing.T) {
	dir := t.TempDir()
	fs1, err := New(dir)
	require.NoError(t, err)
	j := newTestJourney(t)
	require.NoError(t, fs1.Save(context.Background(), j))

	fs2, err := New(dir)
	require.NoError(t, err)
	got, err := fs2.Load(context.Background(), j.JourneyID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, j.DistinctID, got.DistinctID)
}

func TestFileStore_ListActiveExcludesTerminal(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	running := newTestJourney(t)
	done := newTestJourney(t)
	done.Status = journey.StatusCompleted
	done.ExitReason = journey.ExitCompleted

	require.NoError(t, fs.Save(context.Background(), running))
	require.NoError(t, fs.Save(context.Background(), done))

	active, err := fs.ListActive(context.Background(), "user_1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, running.JourneyID, active[0].JourneyID)
}

func TestFileStore_ListForResumeBefore(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour).UnixNano()
	future := time.Now().Add(time.Hour).UnixNano()

	due := newTestJourney(t)
	due.Status = journey.StatusPaused
	due.ResumeAt = &past

	notDue := newTestJourney(t)
	notDue.Status = journey.StatusPaused
	notDue.ResumeAt = &future

	require.NoError(t, fs.Save(context.Background(), due))
	require.NoError(t, fs.Save(context.Background(), notDue))

	out, err := fs.ListForResumeBefore(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, due.JourneyID, out[0].JourneyID)
}

func TestFileStore_FrequencyAccounting(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	j1 := newTestJourney(t)
	j2 := newTestJourney(t)
	j2.CreatedAt = j1.CreatedAt.Add(time.Minute)
	j2.Status = journey.StatusCompleted
	j2.ExitReason = journey.ExitConverted

	require.NoError(t, fs.Save(context.Background(), j1))
	require.NoError(t, fs.Save(context.Background(), j2))

	count, err := fs.CountEverCreated(context.Background(), "camp_1", "user_1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	converted, err := fs.HasConverted(context.Background(), "camp_1", "user_1")
	require.NoError(t, err)
	require.True(t, converted)

	last, err := fs.LastStarted(context.Background(), "camp_1", "user_1")
	require.NoError(t, err)
	require.Equal(t, j2.CreatedAt.Unix(), last.Unix())
}

func TestFileStore_LockIsExclusive(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	g1, err := fs.Lock(context.Background(), "j1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		g2, err := fs.Lock(context.Background(), "j1")
		require.NoError(t, err)
		close(acquired)
		g2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock call should not acquire while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	g1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock call should acquire once the first is released")
	}
}
