package awards

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/storage/memory"
)

const seedYAML = `templates:
  - name: First Discovery
    description: Resolve a reaction nobody has seen before
    category: discovery
    criteria:
      kind: discovery_count
      threshold: 1
    tiers:
      - threshold: 1
        name: Bronze
      - threshold: 5
        name: Silver
      - threshold: 25
        name: Gold
    points: 10
  - name: Sharp Eye
    description: Maintain a high correction acceptance rate
    category: contribution
    criteria:
      kind: correction_accuracy
      threshold: 80
      min_submissions: 10
    tiers:
      - threshold: 80
        name: Gold
    points: 20
`

func writeSeedFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "awards.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestSeeder_Apply(t *testing.T) {
	store := memory.NewStore()
	path := writeSeedFile(t, t.TempDir(), seedYAML)
	seeder := NewSeeder(store, path, testLogger())
	ctx := context.Background()

	if err := seeder.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	templates, err := store.ListTemplates(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}

	first, err := store.GetTemplateByName(ctx, "First Discovery")
	if err != nil {
		t.Fatalf("GetTemplateByName failed: %v", err)
	}
	if first.Category != storage.CategoryDiscovery || first.Points != 10 {
		t.Errorf("unexpected template: %+v", first)
	}
	if len(first.Tiers) != 3 || first.Tiers[2].Name != "Gold" {
		t.Errorf("unexpected tiers: %+v", first.Tiers)
	}

	eye, err := store.GetTemplateByName(ctx, "Sharp Eye")
	if err != nil {
		t.Fatal(err)
	}
	if eye.Criteria.MinSubmissions != 10 {
		t.Errorf("expected min_submissions 10, got %d", eye.Criteria.MinSubmissions)
	}

	// Re-applying an unchanged file is a no-op.
	if err := seeder.Apply(ctx); err != nil {
		t.Fatalf("re-Apply failed: %v", err)
	}
	after, err := store.GetTemplateByName(ctx, "First Discovery")
	if err != nil {
		t.Fatal(err)
	}
	if after.Version != first.Version {
		t.Errorf("unchanged seed must not bump versions: %d -> %d", first.Version, after.Version)
	}
}

func TestSeeder_ApplyUpdatesChangedTemplates(t *testing.T) {
	store := memory.NewStore()
	dir := t.TempDir()
	path := writeSeedFile(t, dir, seedYAML)
	seeder := NewSeeder(store, path, testLogger())
	ctx := context.Background()

	if err := seeder.Apply(ctx); err != nil {
		t.Fatal(err)
	}

	updated := `templates:
  - name: First Discovery
    description: Resolve a reaction nobody has seen before
    category: discovery
    criteria:
      kind: discovery_count
      threshold: 1
    tiers:
      - threshold: 1
        name: Bronze
    points: 50
`
	writeSeedFile(t, dir, updated)
	if err := seeder.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	tmpl, err := store.GetTemplateByName(ctx, "First Discovery")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Points != 50 {
		t.Errorf("expected points updated to 50, got %d", tmpl.Points)
	}
	if tmpl.Version != 2 {
		t.Errorf("expected version bump to 2, got %d", tmpl.Version)
	}
}

func TestSeeder_ApplyRejectsBadTemplates(t *testing.T) {
	store := memory.NewStore()
	bad := `templates:
  - name: Backwards
    category: discovery
    criteria:
      kind: discovery_count
    tiers:
      - threshold: 10
        name: Gold
      - threshold: 1
        name: Bronze
    points: 5
  - name: Fine
    category: discovery
    criteria:
      kind: discovery_count
    tiers:
      - threshold: 1
        name: Bronze
    points: 5
`
	path := writeSeedFile(t, t.TempDir(), bad)
	seeder := NewSeeder(store, path, testLogger())

	err := seeder.Apply(context.Background())
	if err == nil {
		t.Fatal("descending tiers must be rejected")
	}
	// The valid template still lands.
	if _, err := store.GetTemplateByName(context.Background(), "Fine"); err != nil {
		t.Errorf("valid template should be created despite sibling failure: %v", err)
	}
}

func TestSeeder_WatchReloadsOnWrite(t *testing.T) {
	store := memory.NewStore()
	dir := t.TempDir()
	path := writeSeedFile(t, dir, seedYAML)
	seeder := NewSeeder(store, path, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seeder.Apply(ctx); err != nil {
		t.Fatal(err)
	}
	if err := seeder.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer seeder.Close()

	extended := seedYAML + `  - name: Night Owl
    description: Stay active for consecutive days
    category: community
    criteria:
      kind: consecutive_days
      threshold: 7
    tiers:
      - threshold: 7
        name: Bronze
    points: 5
`
	writeSeedFile(t, dir, extended)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_, err := store.GetTemplateByName(ctx, "Night Owl")
		if err == nil {
			return
		}
		if !errors.Is(err, storage.ErrTemplateNotFound) {
			t.Fatalf("GetTemplateByName failed: %v", err)
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("seed reload did not activate the new template")
}
