package conformance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
)

// RunErrorTests verifies that every sentinel error is triggered by the appropriate operation.
func RunErrorTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("ErrOutcomeNotFound", func(t *testing.T) {
		store := newStore()
		defer store.Close()

		_, err := store.GetOutcome(context.Background(), "no-such-key")
		if !errors.Is(err, storage.ErrOutcomeNotFound) {
			t.Errorf("expected ErrOutcomeNotFound, got %v", err)
		}
	})

	t.Run("ErrDiscoveryNotFound", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetDiscovery(ctx, "no-such-effect"); !errors.Is(err, storage.ErrDiscoveryNotFound) {
			t.Errorf("expected ErrDiscoveryNotFound from GetDiscovery, got %v", err)
		}
		if err := store.DeleteDiscovery(ctx, "no-such-effect"); !errors.Is(err, storage.ErrDiscoveryNotFound) {
			t.Errorf("expected ErrDiscoveryNotFound from DeleteDiscovery, got %v", err)
		}
	})

	t.Run("ErrTemplateNotFound", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetTemplate(ctx, 999); !errors.Is(err, storage.ErrTemplateNotFound) {
			t.Errorf("expected ErrTemplateNotFound from GetTemplate, got %v", err)
		}
		if _, err := store.GetTemplateByName(ctx, "no-such-template"); !errors.Is(err, storage.ErrTemplateNotFound) {
			t.Errorf("expected ErrTemplateNotFound from GetTemplateByName, got %v", err)
		}

		missing := discoveryTemplate("Ghost")
		missing.ID = 999
		if err := store.UpdateTemplate(ctx, missing); !errors.Is(err, storage.ErrTemplateNotFound) {
			t.Errorf("expected ErrTemplateNotFound from UpdateTemplate, got %v", err)
		}
	})

	t.Run("ErrAwardNotFound", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetUserAward(ctx, 1, 999); !errors.Is(err, storage.ErrAwardNotFound) {
			t.Errorf("expected ErrAwardNotFound from GetUserAward, got %v", err)
		}
		err := store.UpdateUserAwardTier(ctx, 1, 999, 2, storage.ProgressSnapshot{}, time.Now())
		if !errors.Is(err, storage.ErrAwardNotFound) {
			t.Errorf("expected ErrAwardNotFound from UpdateUserAwardTier, got %v", err)
		}
		if err := store.DeleteUserAward(ctx, 1, 999); !errors.Is(err, storage.ErrAwardNotFound) {
			t.Errorf("expected ErrAwardNotFound from DeleteUserAward, got %v", err)
		}
	})
}
