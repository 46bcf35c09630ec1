// Package store defines the Journey Store contract (C3): durable,
// per-user, per-journey state with atomic single-writer semantics.
// internal/store/filestore implements it against on-device files
// (the default, crash-consistent backend); internal/store/pgstore
// implements it against Postgres for a distributed test harness or
// analytics mirror.
package store

import (
	"context"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
)

// Guard is an exclusive per-journey lock. Release must be called
// exactly once; it is safe to defer immediately after a successful
// Lock call.
type Guard interface {
	Release()
}

// Store is the durable journey record contract (§4.3).
type Store interface {
	// Load returns the canonical current state, or (nil, nil) if no
	// journey exists with that id.
	Load(ctx context.Context, journeyID string) (*journey.Journey, error)

	// Save atomically replaces the persisted record. Must be durable
	// before returning.
	Save(ctx context.Context, j *journey.Journey) error

	// ListActive returns every non-terminal journey for a user.
	ListActive(ctx context.Context, distinctID string) ([]*journey.Journey, error)

	// ListForResumeBefore returns every paused journey whose
	// resume_at is at or before the given instant, for scheduler
	// rehydration on process start.
	ListForResumeBefore(ctx context.Context, instant time.Time) ([]*journey.Journey, error)

	// Lock acquires an exclusive, fair-enough (not necessarily FIFO)
	// lock on a journey id. Blocks until acquired or ctx is done.
	Lock(ctx context.Context, journeyID string) (Guard, error)

	// CountEverCreated returns how many journeys have ever been
	// created for (campaignID, distinctID), for frequency-policy
	// accounting (§4.7).
	CountEverCreated(ctx context.Context, campaignID, distinctID string) (int, error)

	// LastStarted returns the CreatedAt of the most recently started
	// journey for (campaignID, distinctID), or the zero time if none
	// exists.
	LastStarted(ctx context.Context, campaignID, distinctID string) (time.Time, error)

	// HasConverted reports whether any journey for (campaignID,
	// distinctID) completed with ExitReason = converted.
	HasConverted(ctx context.Context, campaignID, distinctID string) (bool, error)
}
