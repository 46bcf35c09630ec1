package registrar

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/store/filestore"
)

// TestRegistrar_MessageLimitNeverExceededProperty checks P6: the count
// of journeys ever created for a (campaign, user) pair never exceeds
// message_limit, regardless of how many matching events arrive or
// which frequency policy is configured.
func TestRegistrar_MessageLimitNeverExceededProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	policies := []journey.FrequencyPolicy{
		journey.FrequencyEveryRematch,
		journey.FrequencyOnce,
		journey.FrequencyUntilConverted,
	}

	properties.Property("event bursts never spawn more journeys than message_limit", prop.ForAll(
		func(limit int, eventCount int, policyIdx int) bool {
			fs, err := filestore.New(t.TempDir())
			if err != nil {
				return false
			}
			spawner := &fakeSpawner{store: fs}
			r, err := New(fs, spawner, noopIndex{}, nil, nil, clock.NewFake(time.Now()), nil, nil)
			if err != nil {
				return false
			}

			c := minimalCampaign("camp_prop", "ev", policies[policyIdx])
			c.MessageLimit = &limit
			if err := r.Register(c); err != nil {
				return false
			}

			ctx := context.Background()
			for i := 0; i < eventCount; i++ {
				r.OnEvent(ctx, Incoming{Name: "ev", DistinctID: "user_prop"})
			}

			deadline := time.Now().Add(500 * time.Millisecond)
			for time.Now().Before(deadline) {
				if spawner.count() >= limit {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			// let any over-eager late spawn land before the final count
			time.Sleep(50 * time.Millisecond)

			return spawner.count() <= limit
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 10),
		gen.IntRange(0, len(policies)-1),
	))

	result := properties.Run(gopter.ConsoleReporter(false))
	require.True(t, result)
}
