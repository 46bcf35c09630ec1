package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/executor"
)

// RedisScheduler is the distributed counterpart of Scheduler: armed
// deadlines live in a Redis sorted set (score = resume_at unix nanos,
// member = journey id) instead of an in-process heap, so any
// replica's poll loop can claim and fire a due journey. It satisfies
// the same executor.Armer contract.
type RedisScheduler struct {
	rdb      *redis.Client
	advancer executor.Advancer
	clock    clock.Clock
	log      *slog.Logger
	key      string
	poll     time.Duration
}

// NewRedisScheduler builds a Redis-backed scheduler against zsetKey
// (e.g. "journeyengine:schedule").
func NewRedisScheduler(rdb *redis.Client, adv executor.Advancer, clk clock.Clock, zsetKey string, log *slog.Logger) *RedisScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &RedisScheduler{rdb: rdb, advancer: adv, clock: clk, key: zsetKey, poll: time.Second, log: log}
}

// WithPollInterval overrides the default 1s poll interval.
func (s *RedisScheduler) WithPollInterval(d time.Duration) *RedisScheduler {
	s.poll = d
	return s
}

// Arm upserts journeyID's deadline in the sorted set; ZADD with
// default options replaces any existing score for the same member,
// giving the idempotent re-arm semantics §4.5 requires.
func (s *RedisScheduler) Arm(journeyID string, at time.Time) {
	ctx := context.Background()
	err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: float64(at.UnixNano()), Member: journeyID}).Err()
	if err != nil {
		s.log.Error("redis scheduler arm failed", "journey_id", journeyID, "error", err)
	}
}

// Disarm removes journeyID from the sorted set.
func (s *RedisScheduler) Disarm(journeyID string) {
	ctx := context.Background()
	if err := s.rdb.ZRem(ctx, s.key, journeyID).Err(); err != nil {
		s.log.Error("redis scheduler disarm failed", "journey_id", journeyID, "error", err)
	}
}

// Start polls the sorted set for due members until ctx is cancelled.
// Claiming a due member is a ZREM: only the replica whose ZREM
// reports a removal actually fires it, so two replicas racing on the
// same poll never double-advance a journey.
func (s *RedisScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("redis scheduler tick failed", "error", err)
			}
		}
	}
}

func (s *RedisScheduler) tick(ctx context.Context) error {
	now := s.now()
	due, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixNano()),
	}).Result()
	if err != nil {
		return fmt.Errorf("scheduler: scanning due journeys: %w", err)
	}
	for _, journeyID := range due {
		removed, err := s.rdb.ZRem(ctx, s.key, journeyID).Result()
		if err != nil {
			s.log.Error("redis scheduler claim failed", "journey_id", journeyID, "error", err)
			continue
		}
		if removed == 0 {
			continue // another replica already claimed it
		}
		go func(id string) {
			if err := s.advancer.Advance(ctx, id, nil); err != nil {
				s.log.Error("redis scheduler advance failed", "journey_id", id, "error", err)
			}
		}(journeyID)
	}
	return nil
}

func (s *RedisScheduler) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

var _ executor.Armer = (*RedisScheduler)(nil)
