package conformance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/awebisam/chemezy/internal/storage"
)

// RunDiscoveryTests verifies the unique-constraint discovery ledger.
func RunDiscoveryTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("FirstWriterWins", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		first := &storage.DiscoveryRecord{Effect: "glowing", UserID: 1, CacheKey: "key-a"}
		if err := store.CreateDiscovery(ctx, first); err != nil {
			t.Fatalf("CreateDiscovery failed: %v", err)
		}

		second := &storage.DiscoveryRecord{Effect: "glowing", UserID: 2, CacheKey: "key-b"}
		if err := store.CreateDiscovery(ctx, second); !errors.Is(err, storage.ErrDiscoveryExists) {
			t.Errorf("expected ErrDiscoveryExists, got %v", err)
		}

		got, err := store.GetDiscovery(ctx, "glowing")
		if err != nil {
			t.Fatalf("GetDiscovery failed: %v", err)
		}
		if got.UserID != 1 || got.CacheKey != "key-a" {
			t.Errorf("losing writer replaced the record: %+v", got)
		}
	})

	t.Run("ConcurrentClaimsOneWinner", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		const claimants = 16
		var wg sync.WaitGroup
		wins := make(chan int64, claimants)

		for i := 0; i < claimants; i++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				err := store.CreateDiscovery(ctx, &storage.DiscoveryRecord{
					Effect: "sparking", UserID: userID, CacheKey: "key-race",
				})
				if err == nil {
					wins <- userID
				} else if !errors.Is(err, storage.ErrDiscoveryExists) {
					t.Errorf("unexpected error: %v", err)
				}
			}(int64(i + 1))
		}
		wg.Wait()
		close(wins)

		var winners []int64
		for w := range wins {
			winners = append(winners, w)
		}
		if len(winners) != 1 {
			t.Fatalf("expected exactly one winner, got %d", len(winners))
		}

		got, err := store.GetDiscovery(ctx, "sparking")
		if err != nil {
			t.Fatalf("GetDiscovery failed: %v", err)
		}
		if got.UserID != winners[0] {
			t.Errorf("stored record belongs to user %d, winner was %d", got.UserID, winners[0])
		}
	})

	t.Run("ListNewestFirstWithPagination", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			record := &storage.DiscoveryRecord{
				Effect:   fmt.Sprintf("effect-%d", i),
				UserID:   1,
				CacheKey: fmt.Sprintf("key-%d", i),
			}
			if err := store.CreateDiscovery(ctx, record); err != nil {
				t.Fatalf("CreateDiscovery failed: %v", err)
			}
		}

		page, err := store.ListDiscoveries(ctx, 2, 0)
		if err != nil {
			t.Fatalf("ListDiscoveries failed: %v", err)
		}
		if len(page) != 2 {
			t.Fatalf("expected 2 records, got %d", len(page))
		}
		if page[0].Effect != "effect-4" {
			t.Errorf("expected newest first, got %s", page[0].Effect)
		}

		rest, err := store.ListDiscoveries(ctx, 10, 2)
		if err != nil {
			t.Fatalf("ListDiscoveries failed: %v", err)
		}
		if len(rest) != 3 {
			t.Errorf("expected 3 records after offset 2, got %d", len(rest))
		}

		empty, err := store.ListDiscoveries(ctx, 10, 100)
		if err != nil {
			t.Fatalf("ListDiscoveries failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no records past the end, got %d", len(empty))
		}
	})

	t.Run("DeleteMakesEffectClaimable", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		record := &storage.DiscoveryRecord{Effect: "fizzing", UserID: 1, CacheKey: "key-1"}
		if err := store.CreateDiscovery(ctx, record); err != nil {
			t.Fatalf("CreateDiscovery failed: %v", err)
		}

		if err := store.DeleteDiscovery(ctx, "fizzing"); err != nil {
			t.Fatalf("DeleteDiscovery failed: %v", err)
		}
		if _, err := store.GetDiscovery(ctx, "fizzing"); !errors.Is(err, storage.ErrDiscoveryNotFound) {
			t.Errorf("expected ErrDiscoveryNotFound after delete, got %v", err)
		}

		// The effect is open for a fresh claim.
		reclaim := &storage.DiscoveryRecord{Effect: "fizzing", UserID: 2, CacheKey: "key-2"}
		if err := store.CreateDiscovery(ctx, reclaim); err != nil {
			t.Errorf("expected re-claim to succeed, got %v", err)
		}
	})
}
