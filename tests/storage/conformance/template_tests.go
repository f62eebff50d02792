package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/awebisam/chemezy/internal/storage"
)

func discoveryTemplate(name string) *storage.AwardTemplate {
	return &storage.AwardTemplate{
		Name:     name,
		Category: storage.CategoryDiscovery,
		Criteria: storage.CriteriaSpec{Kind: "discovery_count"},
		Tiers: []storage.TierSpec{
			{Threshold: 1, Name: "Bronze"},
			{Threshold: 10, Name: "Silver"},
		},
		Points: 10,
		Active: true,
	}
}

// RunTemplateTests verifies award template persistence semantics.
func RunTemplateTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("CreateAssignsIDAndVersion", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := discoveryTemplate("Pioneer")
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		if tmpl.ID == 0 {
			t.Error("expected an assigned ID")
		}
		if tmpl.Version != 1 {
			t.Errorf("expected version 1, got %d", tmpl.Version)
		}

		got, err := store.GetTemplate(ctx, tmpl.ID)
		if err != nil {
			t.Fatalf("GetTemplate failed: %v", err)
		}
		if got.Name != "Pioneer" || len(got.Tiers) != 2 || got.Tiers[1].Name != "Silver" {
			t.Errorf("unexpected template: %+v", got)
		}
		if got.Criteria.Kind != "discovery_count" {
			t.Errorf("unexpected criteria: %+v", got.Criteria)
		}
	})

	t.Run("NameIsUniqueCaseInsensitive", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		if err := store.CreateTemplate(ctx, discoveryTemplate("Pioneer")); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		if err := store.CreateTemplate(ctx, discoveryTemplate("pioneer")); !errors.Is(err, storage.ErrTemplateExists) {
			t.Errorf("expected ErrTemplateExists, got %v", err)
		}
	})

	t.Run("GetByName", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := discoveryTemplate("Pioneer")
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}

		got, err := store.GetTemplateByName(ctx, "Pioneer")
		if err != nil {
			t.Fatalf("GetTemplateByName failed: %v", err)
		}
		if got.ID != tmpl.ID {
			t.Errorf("expected template %d, got %d", tmpl.ID, got.ID)
		}
	})

	t.Run("UpdateBumpsVersion", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		tmpl := discoveryTemplate("Pioneer")
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}

		tmpl.Points = 25
		if err := store.UpdateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("UpdateTemplate failed: %v", err)
		}

		got, err := store.GetTemplate(ctx, tmpl.ID)
		if err != nil {
			t.Fatalf("GetTemplate failed: %v", err)
		}
		if got.Version != 2 || got.Points != 25 {
			t.Errorf("expected version 2 with 25 points, got %+v", got)
		}
	})

	t.Run("ListFiltersByActive", func(t *testing.T) {
		store := newStore()
		defer store.Close()
		ctx := context.Background()

		active := discoveryTemplate("Active")
		if err := store.CreateTemplate(ctx, active); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		retired := discoveryTemplate("Retired")
		retired.Active = false
		if err := store.CreateTemplate(ctx, retired); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}

		all, err := store.ListTemplates(ctx, false)
		if err != nil {
			t.Fatalf("ListTemplates failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 templates, got %d", len(all))
		}

		activeOnly, err := store.ListTemplates(ctx, true)
		if err != nil {
			t.Fatalf("ListTemplates failed: %v", err)
		}
		if len(activeOnly) != 1 || activeOnly[0].Name != "Active" {
			t.Errorf("expected only the active template, got %+v", activeOnly)
		}
	})
}
