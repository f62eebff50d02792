package conformance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
)

// RunUserAwardTests verifies granted-award persistence and aggregation.
func RunUserAwardTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	mustTemplate := func(t *testing.T, store storage.Storage, name string, category storage.Category, points int64) *storage.AwardTemplate {
		t.Helper()
		tmpl := discoveryTemplate(name)
		tmpl.Category = category
		tmpl.Points = points
		if err := store.CreateTemplate(context.Background(), tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		return tmpl
	}

	t.Run("GrantIsUniquePerUserAndTemplate", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := mustTemplate(t, store, "Pioneer", storage.CategoryDiscovery, 10)

		award := &storage.UserAward{
			UserID: 1, TemplateID: tmpl.ID, Tier: 1,
			Progress:    storage.ProgressSnapshot{Current: 1, Target: 1},
			RelatedType: "discovery",
		}
		if err := store.CreateUserAward(ctx, award); err != nil {
			t.Fatalf("CreateUserAward failed: %v", err)
		}
		if award.ID == 0 || award.GrantedAt.IsZero() {
			t.Errorf("expected assigned ID and grant time, got %+v", award)
		}

		dup := &storage.UserAward{UserID: 1, TemplateID: tmpl.ID, Tier: 2}
		if err := store.CreateUserAward(ctx, dup); !errors.Is(err, storage.ErrAwardExists) {
			t.Errorf("expected ErrAwardExists, got %v", err)
		}
	})

	t.Run("TierMovesInPlace", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := mustTemplate(t, store, "Pioneer", storage.CategoryDiscovery, 10)
		award := &storage.UserAward{UserID: 1, TemplateID: tmpl.ID, Tier: 1}
		if err := store.CreateUserAward(ctx, award); err != nil {
			t.Fatalf("CreateUserAward failed: %v", err)
		}

		upgraded := time.Now().UTC().Truncate(time.Second)
		progress := storage.ProgressSnapshot{Current: 10, Target: 10}
		if err := store.UpdateUserAwardTier(ctx, 1, tmpl.ID, 2, progress, upgraded); err != nil {
			t.Fatalf("UpdateUserAwardTier failed: %v", err)
		}

		got, err := store.GetUserAward(ctx, 1, tmpl.ID)
		if err != nil {
			t.Fatalf("GetUserAward failed: %v", err)
		}
		if got.Tier != 2 || got.Progress.Current != 10 {
			t.Errorf("unexpected award after upgrade: %+v", got)
		}

		awards, err := store.ListUserAwards(ctx, 1)
		if err != nil {
			t.Fatalf("ListUserAwards failed: %v", err)
		}
		if len(awards) != 1 {
			t.Errorf("upgrade must not duplicate the award, got %d records", len(awards))
		}
	})

	t.Run("DeleteRevokes", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := mustTemplate(t, store, "Pioneer", storage.CategoryDiscovery, 10)
		award := &storage.UserAward{UserID: 1, TemplateID: tmpl.ID, Tier: 1}
		if err := store.CreateUserAward(ctx, award); err != nil {
			t.Fatalf("CreateUserAward failed: %v", err)
		}

		if err := store.DeleteUserAward(ctx, 1, tmpl.ID); err != nil {
			t.Fatalf("DeleteUserAward failed: %v", err)
		}
		if _, err := store.GetUserAward(ctx, 1, tmpl.ID); !errors.Is(err, storage.ErrAwardNotFound) {
			t.Errorf("expected ErrAwardNotFound after delete, got %v", err)
		}
		if err := store.DeleteUserAward(ctx, 1, tmpl.ID); !errors.Is(err, storage.ErrAwardNotFound) {
			t.Errorf("expected ErrAwardNotFound on double delete, got %v", err)
		}
	})

	t.Run("AggregateWeighsPointsByTier", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		pioneer := mustTemplate(t, store, "Pioneer", storage.CategoryDiscovery, 10)
		helper := mustTemplate(t, store, "Helper", storage.CategoryContribution, 5)

		grants := []*storage.UserAward{
			{UserID: 1, TemplateID: pioneer.ID, Tier: 2},
			{UserID: 1, TemplateID: helper.ID, Tier: 1},
			{UserID: 2, TemplateID: pioneer.ID, Tier: 1},
		}
		for _, g := range grants {
			if err := store.CreateUserAward(ctx, g); err != nil {
				t.Fatalf("CreateUserAward failed: %v", err)
			}
		}

		discovery, err := store.AggregateAwards(ctx, storage.CategoryDiscovery)
		if err != nil {
			t.Fatalf("AggregateAwards failed: %v", err)
		}
		byUser := make(map[int64]storage.AwardAggregate, len(discovery))
		for _, agg := range discovery {
			byUser[agg.UserID] = agg
		}
		if byUser[1].TierPoints != 20 || byUser[1].Awards != 1 {
			t.Errorf("unexpected aggregate for user 1: %+v", byUser[1])
		}
		if byUser[2].TierPoints != 10 {
			t.Errorf("unexpected aggregate for user 2: %+v", byUser[2])
		}

		// Empty category aggregates across all categories.
		overall, err := store.AggregateAwards(ctx, "")
		if err != nil {
			t.Fatalf("AggregateAwards failed: %v", err)
		}
		byUser = make(map[int64]storage.AwardAggregate, len(overall))
		for _, agg := range overall {
			byUser[agg.UserID] = agg
		}
		if byUser[1].TierPoints != 25 || byUser[1].Awards != 2 {
			t.Errorf("unexpected overall aggregate for user 1: %+v", byUser[1])
		}
	})
}
