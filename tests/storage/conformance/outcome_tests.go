package conformance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/awebisam/chemezy/internal/storage"
)

// RunOutcomeTests verifies reaction outcome persistence semantics.
func RunOutcomeTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("PutAndGetRoundtrip", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		record := &storage.OutcomeRecord{
			CacheKey:    "key-roundtrip",
			Reactants:   []string{"H2O", "NaCl"},
			Environment: "earth",
			Catalyst:    "heat",
			Products:    []storage.Product{{Formula: "NaCl(aq)", Name: "Saltwater", Phase: "liquid"}},
			Effects:     []string{"dissolving", "bubbling"},
			StateChange: "solid_to_aqueous",
			Explanation: "salt dissolves in water",
			UserID:      1,
		}
		if err := store.PutOutcome(ctx, record); err != nil {
			t.Fatalf("PutOutcome failed: %v", err)
		}
		if record.ID == 0 {
			t.Error("expected an assigned ID")
		}
		if record.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		got, err := store.GetOutcome(ctx, "key-roundtrip")
		if err != nil {
			t.Fatalf("GetOutcome failed: %v", err)
		}
		if got.Environment != "earth" || got.Catalyst != "heat" || got.UserID != 1 {
			t.Errorf("unexpected record: %+v", got)
		}
		if len(got.Reactants) != 2 || got.Reactants[0] != "H2O" {
			t.Errorf("unexpected reactants: %v", got.Reactants)
		}
		if len(got.Products) != 1 || got.Products[0].Formula != "NaCl(aq)" {
			t.Errorf("unexpected products: %v", got.Products)
		}
		if len(got.Effects) != 2 || got.Effects[1] != "bubbling" {
			t.Errorf("unexpected effects: %v", got.Effects)
		}
	})

	t.Run("DuplicateKeyRejected", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		first := &storage.OutcomeRecord{CacheKey: "key-dup", Reactants: []string{"H2"}, UserID: 1, Explanation: "first"}
		if err := store.PutOutcome(ctx, first); err != nil {
			t.Fatalf("PutOutcome failed: %v", err)
		}

		second := &storage.OutcomeRecord{CacheKey: "key-dup", Reactants: []string{"H2"}, UserID: 2, Explanation: "second"}
		if err := store.PutOutcome(ctx, second); !errors.Is(err, storage.ErrOutcomeExists) {
			t.Errorf("expected ErrOutcomeExists, got %v", err)
		}

		// The first write stays.
		got, err := store.GetOutcome(ctx, "key-dup")
		if err != nil {
			t.Fatalf("GetOutcome failed: %v", err)
		}
		if got.UserID != 1 || got.Explanation != "first" {
			t.Errorf("duplicate write overwrote the original: %+v", got)
		}
	})

	t.Run("ListByUserNewestFirst", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			record := &storage.OutcomeRecord{
				CacheKey:  fmt.Sprintf("key-list-%d", i),
				Reactants: []string{"H2O"},
				UserID:    1,
			}
			if err := store.PutOutcome(ctx, record); err != nil {
				t.Fatalf("PutOutcome failed: %v", err)
			}
		}
		other := &storage.OutcomeRecord{CacheKey: "key-other", Reactants: []string{"O2"}, UserID: 2}
		if err := store.PutOutcome(ctx, other); err != nil {
			t.Fatalf("PutOutcome failed: %v", err)
		}

		records, err := store.ListOutcomesByUser(ctx, 1, 3)
		if err != nil {
			t.Fatalf("ListOutcomesByUser failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].CacheKey != "key-list-4" {
			t.Errorf("expected newest record first, got %s", records[0].CacheKey)
		}
		for _, r := range records {
			if r.UserID != 1 {
				t.Errorf("got a record for the wrong user: %+v", r)
			}
		}
	})
}
