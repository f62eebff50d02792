package conformance

import (
	"context"
	"fmt"
	"testing"

	"github.com/awebisam/chemezy/internal/storage"
)

// RunStatsTests verifies the aggregate statistics the award engine reads.
func RunStatsTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("EmptyUser", func(t *testing.T) {
		store := newStore()
		defer store.Close()

		stats, err := store.GetUserStats(context.Background(), 42)
		if err != nil {
			t.Fatalf("GetUserStats failed: %v", err)
		}
		if stats.Discoveries != 0 || stats.Contributions != 0 || stats.ConsecutiveDays != 0 {
			t.Errorf("expected zero stats, got %+v", stats)
		}
	})

	t.Run("CountsDiscoveriesAndEffects", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			record := &storage.DiscoveryRecord{
				Effect:   fmt.Sprintf("effect-%d", i),
				UserID:   1,
				CacheKey: fmt.Sprintf("key-%d", i),
			}
			if err := store.CreateDiscovery(ctx, record); err != nil {
				t.Fatalf("CreateDiscovery failed: %v", err)
			}
		}
		other := &storage.DiscoveryRecord{Effect: "effect-other", UserID: 2, CacheKey: "key-other"}
		if err := store.CreateDiscovery(ctx, other); err != nil {
			t.Fatalf("CreateDiscovery failed: %v", err)
		}

		stats, err := store.GetUserStats(ctx, 1)
		if err != nil {
			t.Fatalf("GetUserStats failed: %v", err)
		}
		if stats.Discoveries != 3 || stats.UniqueEffects != 3 {
			t.Errorf("unexpected discovery stats: %+v", stats)
		}
	})

	t.Run("CountsContributions", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			record := &storage.ContributionRecord{
				UserID:   1,
				Kind:     "debug_submission",
				Accepted: i%2 == 0,
			}
			if err := store.CreateContribution(ctx, record); err != nil {
				t.Fatalf("CreateContribution failed: %v", err)
			}
		}

		stats, err := store.GetUserStats(ctx, 1)
		if err != nil {
			t.Fatalf("GetUserStats failed: %v", err)
		}
		if stats.Contributions != 4 || stats.AcceptedContributions != 2 {
			t.Errorf("unexpected contribution stats: %+v", stats)
		}
	})

	t.Run("TracksActivityStreak", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		record := &storage.OutcomeRecord{CacheKey: "key-streak", Reactants: []string{"H2O"}, UserID: 1}
		if err := store.PutOutcome(ctx, record); err != nil {
			t.Fatalf("PutOutcome failed: %v", err)
		}

		stats, err := store.GetUserStats(ctx, 1)
		if err != nil {
			t.Fatalf("GetUserStats failed: %v", err)
		}
		if stats.ConsecutiveDays != 1 {
			t.Errorf("expected a one-day streak after today's activity, got %d", stats.ConsecutiveDays)
		}
	})
}
