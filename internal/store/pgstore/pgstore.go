// Package pgstore implements the journey store (C3) against
// Postgres via pgx. It exists as an optional distributed backend for
// a multi-process test harness or an analytics mirror — a single
// on-device SDK normally runs filestore — but it satisfies exactly the
// same store.Store contract, including the advisory-lock-backed Lock
// guard, so the executor never knows which backend it's talking to.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS journeys (
	journey_id       TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL,
	distinct_id      TEXT NOT NULL,
	status           TEXT NOT NULL,
	current_node_id  TEXT NOT NULL,
	resume_at        BIGINT,
	wait_conditions  JSONB,
	context          JSONB,
	exit_reason      TEXT,
	origin_event_id  TEXT,
	delay_deadlines  JSONB,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS journeys_distinct_id_idx ON journeys (distinct_id);
CREATE INDEX IF NOT EXISTS journeys_resume_at_idx ON journeys (resume_at) WHERE status = 'paused';
CREATE INDEX IF NOT EXISTS journeys_campaign_user_idx ON journeys (campaign_id, distinct_id);
`

// Store is a Postgres-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the journeys table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &journey.StoreError{Op: "connect", Cause: err}
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, &journey.StoreError{Op: "migrate", Cause: err}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Load(ctx context.Context, journeyID string) (*journey.Journey, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT journey_id, campaign_id, distinct_id, status, current_node_id,
		       resume_at, wait_conditions, context, exit_reason, origin_event_id,
		       delay_deadlines, created_at, updated_at
		FROM journeys WHERE journey_id = $1`, journeyID)

	j, err := scanJourney(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &journey.StoreError{Op: "load", Cause: err}
	}
	return j, nil
}

func (s *Store) Save(ctx context.Context, j *journey.Journey) error {
	j.UpdatedAt = time.Now().UTC()

	waitConds, err := json.Marshal(j.WaitConditions)
	if err != nil {
		return &journey.StoreError{Op: "marshal_wait_conditions", Cause: err}
	}
	ctxJSON, err := json.Marshal(j.Context)
	if err != nil {
		return &journey.StoreError{Op: "marshal_context", Cause: err}
	}
	delayJSON, err := json.Marshal(j.DelayDeadlines)
	if err != nil {
		return &journey.StoreError{Op: "marshal_delay_deadlines", Cause: err}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO journeys (journey_id, campaign_id, distinct_id, status, current_node_id,
		                       resume_at, wait_conditions, context, exit_reason, origin_event_id,
		                       delay_deadlines, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (journey_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			resume_at = EXCLUDED.resume_at,
			wait_conditions = EXCLUDED.wait_conditions,
			context = EXCLUDED.context,
			exit_reason = EXCLUDED.exit_reason,
			origin_event_id = EXCLUDED.origin_event_id,
			delay_deadlines = EXCLUDED.delay_deadlines,
			updated_at = EXCLUDED.updated_at`,
		j.JourneyID.String(), j.CampaignID, j.DistinctID, string(j.Status), j.CurrentNodeID,
		j.ResumeAt, waitConds, ctxJSON, string(j.ExitReason), j.OriginEventID,
		delayJSON, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return &journey.StoreError{Op: "save", Cause: err}
	}
	return nil
}

func (s *Store) ListActive(ctx context.Context, distinctID string) ([]*journey.Journey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT journey_id, campaign_id, distinct_id, status, current_node_id,
		       resume_at, wait_conditions, context, exit_reason, origin_event_id,
		       delay_deadlines, created_at, updated_at
		FROM journeys WHERE distinct_id = $1 AND status NOT IN ('completed', 'errored')`, distinctID)
	if err != nil {
		return nil, &journey.StoreError{Op: "list_active", Cause: err}
	}
	defer rows.Close()
	return scanJourneys(rows)
}

func (s *Store) ListForResumeBefore(ctx context.Context, instant time.Time) ([]*journey.Journey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT journey_id, campaign_id, distinct_id, status, current_node_id,
		       resume_at, wait_conditions, context, exit_reason, origin_event_id,
		       delay_deadlines, created_at, updated_at
		FROM journeys WHERE status = 'paused' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at ASC`, instant.UnixNano())
	if err != nil {
		return nil, &journey.StoreError{Op: "list_for_resume_before", Cause: err}
	}
	defer rows.Close()
	return scanJourneys(rows)
}

func (s *Store) CountEverCreated(ctx context.Context, campaignID, distinctID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM journeys WHERE campaign_id = $1 AND distinct_id = $2`,
		campaignID, distinctID).Scan(&count)
	if err != nil {
		return 0, &journey.StoreError{Op: "count_ever_created", Cause: err}
	}
	return count, nil
}

func (s *Store) LastStarted(ctx context.Context, campaignID, distinctID string) (time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT max(created_at)
		FROM journeys WHERE campaign_id = $1 AND distinct_id = $2`,
		campaignID, distinctID).Scan(&last)
	if err != nil {
		return time.Time{}, &journey.StoreError{Op: "last_started", Cause: err}
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

func (s *Store) HasConverted(ctx context.Context, campaignID, distinctID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM journeys
			WHERE campaign_id = $1 AND distinct_id = $2 AND exit_reason = $3)`,
		campaignID, distinctID, string(journey.ExitConverted)).Scan(&exists)
	if err != nil {
		return false, &journey.StoreError{Op: "has_converted", Cause: err}
	}
	return exists, nil
}

// ListAllRunning returns every journey currently in StatusRunning,
// across all users. Not part of the core store.Store contract; it
// backs the hanging-journey detector (internal/supervisor), which
// sweeps the whole table rather than one user at a time.
func (s *Store) ListAllRunning(ctx context.Context) ([]*journey.Journey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT journey_id, campaign_id, distinct_id, status, current_node_id,
		       resume_at, wait_conditions, context, exit_reason, origin_event_id,
		       delay_deadlines, created_at, updated_at
		FROM journeys WHERE status = 'running'`)
	if err != nil {
		return nil, &journey.StoreError{Op: "list_all_running", Cause: err}
	}
	defer rows.Close()
	return scanJourneys(rows)
}

// Lock acquires a Postgres advisory lock keyed by a hash of
// journey_id, giving cross-process exclusivity in the distributed
// deployment this backend targets.
func (s *Store) Lock(ctx context.Context, journeyID string) (store.Guard, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &journey.StoreError{Op: "acquire_conn", Cause: err}
	}
	key := lockKey(journeyID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, &journey.StoreError{Op: "advisory_lock", Cause: err}
	}
	return &guard{conn: conn, key: key}, nil
}

func lockKey(journeyID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(journeyID))
	return int64(h.Sum64())
}

type guard struct {
	conn *pgxpool.Conn
	key  int64
}

func (g *guard) Release() {
	_, _ = g.conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, g.key)
	g.conn.Release()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJourney(row rowScanner) (*journey.Journey, error) {
	var (
		j                  journey.Journey
		journeyID          string
		status             string
		exitReason         *string
		waitConditionsJSON []byte
		contextJSON        []byte
		delayDeadlineJSON  []byte
	)
	err := row.Scan(
		&journeyID, &j.CampaignID, &j.DistinctID, &status, &j.CurrentNodeID,
		&j.ResumeAt, &waitConditionsJSON, &contextJSON, &exitReason, &j.OriginEventID,
		&delayDeadlineJSON, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(journeyID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parsing journey_id %q: %w", journeyID, err)
	}
	j.JourneyID = id
	j.Status = journey.Status(status)
	if exitReason != nil {
		j.ExitReason = journey.ExitReason(*exitReason)
	}
	if len(waitConditionsJSON) > 0 {
		if err := json.Unmarshal(waitConditionsJSON, &j.WaitConditions); err != nil {
			return nil, err
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &j.Context); err != nil {
			return nil, err
		}
	}
	if len(delayDeadlineJSON) > 0 {
		if err := json.Unmarshal(delayDeadlineJSON, &j.DelayDeadlines); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func scanJourneys(rows pgx.Rows) ([]*journey.Journey, error) {
	var out []*journey.Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
