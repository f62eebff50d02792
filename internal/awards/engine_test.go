package awards

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustCreateTemplate(t *testing.T, store storage.Storage, tmpl *storage.AwardTemplate) *storage.AwardTemplate {
	t.Helper()
	if err := store.CreateTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}
	return tmpl
}

func discoveryTemplate(name string) *storage.AwardTemplate {
	return &storage.AwardTemplate{
		Name:     name,
		Category: storage.CategoryDiscovery,
		Criteria: storage.CriteriaSpec{Kind: KindDiscoveryCount},
		Tiers: []storage.TierSpec{
			{Threshold: 1, Name: "Bronze"},
			{Threshold: 5, Name: "Silver"},
			{Threshold: 25, Name: "Gold"},
		},
		Points: 10,
		Active: true,
	}
}

// discoverySeq keeps generated effects unique across repeated calls for
// the same user; the store rejects duplicate effects.
var discoverySeq atomic.Int64

func recordDiscoveries(t *testing.T, store storage.Storage, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		seq := discoverySeq.Add(1)
		err := store.CreateDiscovery(context.Background(), &storage.DiscoveryRecord{
			Effect:       fmt.Sprintf("effect-%d-%d", userID, seq),
			UserID:       userID,
			CacheKey:     fmt.Sprintf("key-%d-%d", userID, seq),
			DiscoveredAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("CreateDiscovery failed: %v", err)
		}
	}
}

func TestEngine_Evaluate_GrantsHighestMetTier(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))
	recordDiscoveries(t, store, 1, 5)

	changes, err := engine.Evaluate(ctx, 1, &Event{Kind: EventDiscovery, UserID: 1})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Kind != ChangeGranted {
		t.Errorf("expected a grant, got %s", changes[0].Kind)
	}
	if changes[0].Tier != 2 || changes[0].TierName != "Silver" {
		t.Errorf("5 discoveries should grant tier 2 Silver, got tier %d %s", changes[0].Tier, changes[0].TierName)
	}

	award, err := store.GetUserAward(ctx, 1, changes[0].TemplateID)
	if err != nil {
		t.Fatalf("GetUserAward failed: %v", err)
	}
	if award.Progress.Current != 5 || award.Progress.Target != 5 {
		t.Errorf("unexpected progress snapshot: %+v", award.Progress)
	}
}

func TestEngine_Evaluate_Idempotent(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))
	recordDiscoveries(t, store, 1, 2)

	first, err := engine.Evaluate(ctx, 1, &Event{Kind: EventDiscovery, UserID: 1})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 change, got %d", len(first))
	}

	second, err := engine.Evaluate(ctx, 1, &Event{Kind: EventDiscovery, UserID: 1})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("re-evaluation without stat changes must grant nothing, got %d changes", len(second))
	}
}

func TestEngine_Evaluate_AdvancesTierNeverDowngrades(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	tmpl := mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))
	recordDiscoveries(t, store, 1, 1)

	if _, err := engine.Evaluate(ctx, 1, nil); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	recordDiscoveries(t, store, 1, 4)
	changes, err := engine.Evaluate(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeUpgraded || changes[0].Tier != 2 {
		t.Fatalf("expected a tier 2 upgrade, got %+v", changes)
	}

	// An admin bump above the earned tier must stick through evaluation.
	if err := engine.SetTier(ctx, 99, 1, tmpl.ID, 3); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	changes, err = engine.Evaluate(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("evaluation must not downgrade an award: %+v", changes)
	}
	award, err := store.GetUserAward(ctx, 1, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if award.Tier != 3 {
		t.Errorf("expected tier 3 to persist, got %d", award.Tier)
	}
}

func TestEngine_Evaluate_UnknownKindQuarantined(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	tmpl := discoveryTemplate("Chrononaut")
	tmpl.Criteria.Kind = "time_travel"
	mustCreateTemplate(t, store, tmpl)
	recordDiscoveries(t, store, 1, 100)

	changes, err := engine.Evaluate(ctx, 1, nil)
	if err != nil {
		t.Fatalf("quarantined templates must not fail evaluation: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("quarantined template must never grant, got %+v", changes)
	}
}

func TestEngine_Evaluate_FailureIsolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	good := mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))
	bad := discoveryTemplate("Cursed")
	mustCreateTemplate(t, store, bad)
	recordDiscoveries(t, store, 1, 1)

	failing := &awardFailStore{Storage: store, failTemplateID: bad.ID}
	engine := NewEngine(failing, testLogger())

	changes, err := engine.Evaluate(ctx, 1, nil)
	if err == nil {
		t.Fatal("expected the failing template's error to be reported")
	}
	if len(changes) != 1 || changes[0].TemplateID != good.ID {
		t.Fatalf("the healthy template should still grant, got %+v", changes)
	}
}

func TestEngine_Evaluate_CorrectionAccuracy(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	mustCreateTemplate(t, store, &storage.AwardTemplate{
		Name:     "Sharp Eye",
		Category: storage.CategoryContribution,
		Criteria: storage.CriteriaSpec{Kind: KindCorrectionAccuracy, MinSubmissions: 5},
		Tiers:    []storage.TierSpec{{Threshold: 80, Name: "Gold"}},
		Points:   20,
		Active:   true,
	})

	// 4 accepted out of 4: 100% accuracy but under the submission floor.
	for i := 0; i < 4; i++ {
		if err := store.CreateContribution(ctx, &storage.ContributionRecord{
			UserID: 1, Kind: "correction", Accepted: true, CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	changes, err := engine.Evaluate(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("below min_submissions must not grant, got %+v", changes)
	}

	// Fifth accepted submission crosses the floor at 100%.
	if err := store.CreateContribution(ctx, &storage.ContributionRecord{
		UserID: 1, Kind: "correction", Accepted: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	changes, err = engine.Evaluate(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected a grant at 100%% accuracy over 5 submissions, got %+v", changes)
	}
}

func TestEngine_UserProgress(t *testing.T) {
	store := memory.NewStore()
	engine := NewEngine(store, testLogger())
	ctx := context.Background()

	mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))
	recordDiscoveries(t, store, 1, 2)

	reports, err := engine.UserProgress(ctx, 1)
	if err != nil {
		t.Fatalf("UserProgress failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Current != 2 || r.Target != 5 {
		t.Errorf("expected progress 2/5 toward Silver, got %v/%v", r.Current, r.Target)
	}
	if r.Fraction != 0.4 {
		t.Errorf("expected fraction 0.4, got %v", r.Fraction)
	}
	if r.Tier != 1 || r.Completed {
		t.Errorf("expected earned tier 1, not completed: %+v", r)
	}
}

func TestEngine_AdminGrant(t *testing.T) {
	store := memory.NewStore()
	inv := &fakeInvalidator{}
	engine := NewEngine(store, testLogger(), WithInvalidator(inv))
	ctx := context.Background()

	tmpl := mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))

	if _, err := engine.Grant(ctx, 99, 1, tmpl.ID, 4); err == nil {
		t.Error("out-of-range tier must be rejected")
	}

	award, err := engine.Grant(ctx, 99, 1, tmpl.ID, 2)
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if award.Tier != 2 {
		t.Errorf("expected tier 2, got %d", award.Tier)
	}
	if len(inv.categories) != 1 || inv.categories[0] != storage.CategoryDiscovery {
		t.Errorf("grant must invalidate its category, got %v", inv.categories)
	}

	if _, err := engine.Grant(ctx, 99, 1, tmpl.ID, 2); !errors.Is(err, storage.ErrAwardExists) {
		t.Errorf("duplicate grant should surface ErrAwardExists, got %v", err)
	}

	tmpl.Active = false
	if err := store.UpdateTemplate(ctx, tmpl); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Grant(ctx, 99, 2, tmpl.ID, 1); !errors.Is(err, storage.ErrTemplateDeactivated) {
		t.Errorf("expected ErrTemplateDeactivated, got %v", err)
	}
}

func TestEngine_AdminRevoke(t *testing.T) {
	store := memory.NewStore()
	inv := &fakeInvalidator{}
	engine := NewEngine(store, testLogger(), WithInvalidator(inv))
	ctx := context.Background()

	tmpl := mustCreateTemplate(t, store, discoveryTemplate("Pioneer"))

	if err := engine.Revoke(ctx, 99, 1, tmpl.ID, "test"); !errors.Is(err, storage.ErrAwardNotFound) {
		t.Errorf("revoking a missing award should fail with ErrAwardNotFound, got %v", err)
	}

	if _, err := engine.Grant(ctx, 99, 1, tmpl.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := engine.Revoke(ctx, 99, 1, tmpl.ID, "abuse"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.GetUserAward(ctx, 1, tmpl.ID); !errors.Is(err, storage.ErrAwardNotFound) {
		t.Errorf("award should be gone after revoke, got %v", err)
	}
}

type fakeInvalidator struct {
	categories []storage.Category
}

func (f *fakeInvalidator) Invalidate(category storage.Category) {
	f.categories = append(f.categories, category)
}

// awardFailStore fails award reads for one template to exercise
// per-template isolation.
type awardFailStore struct {
	storage.Storage
	failTemplateID int64
}

func (s *awardFailStore) GetUserAward(ctx context.Context, userID, templateID int64) (*storage.UserAward, error) {
	if templateID == s.failTemplateID {
		return nil, errors.New("connection reset")
	}
	return s.Storage.GetUserAward(ctx, userID, templateID)
}
