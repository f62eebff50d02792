package leaderboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedAwards(t *testing.T, store storage.Storage) map[string]int64 {
	t.Helper()
	ctx := context.Background()

	templates := map[string]*storage.AwardTemplate{
		"pioneer": {
			Name:     "Pioneer",
			Category: storage.CategoryDiscovery,
			Criteria: storage.CriteriaSpec{Kind: "discovery_count"},
			Tiers:    []storage.TierSpec{{Threshold: 1, Name: "Bronze"}, {Threshold: 5, Name: "Silver"}},
			Points:   10,
			Active:   true,
		},
		"helper": {
			Name:     "Helper",
			Category: storage.CategoryContribution,
			Criteria: storage.CriteriaSpec{Kind: "debug_submissions"},
			Tiers:    []storage.TierSpec{{Threshold: 1, Name: "Bronze"}},
			Points:   5,
			Active:   true,
		},
	}
	ids := make(map[string]int64)
	for key, tmpl := range templates {
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		ids[key] = tmpl.ID
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	awards := []*storage.UserAward{
		// user 1: pioneer tier 2 = 20 points in discovery
		{UserID: 1, TemplateID: ids["pioneer"], Tier: 2, GrantedAt: base},
		// user 2: pioneer tier 1 + helper tier 1 = 10 + 5
		{UserID: 2, TemplateID: ids["pioneer"], Tier: 1, GrantedAt: base.Add(time.Hour)},
		{UserID: 2, TemplateID: ids["helper"], Tier: 1, GrantedAt: base.Add(2 * time.Hour)},
		// user 3: helper tier 1 = 5 points in contribution
		{UserID: 3, TemplateID: ids["helper"], Tier: 1, GrantedAt: base.Add(3 * time.Hour)},
	}
	for _, award := range awards {
		award.UpgradedAt = award.GrantedAt
		if err := store.CreateUserAward(ctx, award); err != nil {
			t.Fatalf("CreateUserAward failed: %v", err)
		}
	}
	return ids
}

func TestService_GetRanking_PerCategory(t *testing.T) {
	store := memory.NewStore()
	seedAwards(t, store)
	svc := New(store, testLogger())
	ctx := context.Background()

	entries, err := svc.GetRanking(ctx, string(storage.CategoryDiscovery), 10, 0)
	if err != nil {
		t.Fatalf("GetRanking failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 discovery entries, got %d", len(entries))
	}
	if entries[0].UserID != 1 || entries[0].Score != 20 || entries[0].Rank != 1 {
		t.Errorf("unexpected leader: %+v", entries[0])
	}
	if entries[1].UserID != 2 || entries[1].Score != 10 || entries[1].Rank != 2 {
		t.Errorf("unexpected runner-up: %+v", entries[1])
	}
}

func TestService_GetRanking_Overall(t *testing.T) {
	store := memory.NewStore()
	seedAwards(t, store)
	svc := New(store, testLogger())

	entries, err := svc.GetRanking(context.Background(), CategoryOverall, 10, 0)
	if err != nil {
		t.Fatalf("GetRanking failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 overall entries, got %d", len(entries))
	}
	// user 1: 20, user 2: 15, user 3: 5
	want := []struct {
		userID int64
		score  int64
	}{{1, 20}, {2, 15}, {3, 5}}
	for i, w := range want {
		if entries[i].UserID != w.userID || entries[i].Score != w.score {
			t.Errorf("rank %d: expected user %d score %d, got %+v", i+1, w.userID, w.score, entries[i])
		}
	}
}

func TestService_GetRanking_DeterministicTieBreak(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	tmpl := &storage.AwardTemplate{
		Name:     "Pioneer",
		Category: storage.CategoryDiscovery,
		Criteria: storage.CriteriaSpec{Kind: "discovery_count"},
		Tiers:    []storage.TierSpec{{Threshold: 1, Name: "Bronze"}},
		Points:   10,
		Active:   true,
	}
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Same score; user 5 granted earlier than user 4. Users 7 and 6 share
	// the same timestamp, so user id decides.
	for _, award := range []*storage.UserAward{
		{UserID: 4, TemplateID: tmpl.ID, Tier: 1, GrantedAt: base.Add(time.Hour)},
		{UserID: 5, TemplateID: tmpl.ID, Tier: 1, GrantedAt: base},
		{UserID: 7, TemplateID: tmpl.ID, Tier: 1, GrantedAt: base.Add(2 * time.Hour)},
		{UserID: 6, TemplateID: tmpl.ID, Tier: 1, GrantedAt: base.Add(2 * time.Hour)},
	} {
		award.UpgradedAt = award.GrantedAt
		if err := store.CreateUserAward(ctx, award); err != nil {
			t.Fatal(err)
		}
	}

	svc := New(store, testLogger())
	for i := 0; i < 5; i++ {
		entries, err := svc.GetRanking(ctx, string(storage.CategoryDiscovery), 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		got := make([]int64, len(entries))
		for j, e := range entries {
			got[j] = e.UserID
		}
		want := []int64{5, 4, 6, 7}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("query %d: expected order %v, got %v", i, want, got)
			}
		}
	}
}

func TestService_GetRank(t *testing.T) {
	store := memory.NewStore()
	seedAwards(t, store)
	svc := New(store, testLogger())
	ctx := context.Background()

	entry, err := svc.GetRank(ctx, 2, CategoryOverall)
	if err != nil {
		t.Fatalf("GetRank failed: %v", err)
	}
	if entry.Rank != 2 || entry.Score != 15 {
		t.Errorf("expected rank 2 score 15, got %+v", entry)
	}

	if _, err := svc.GetRank(ctx, 42, CategoryOverall); !errors.Is(err, ErrNotRanked) {
		t.Errorf("expected ErrNotRanked, got %v", err)
	}

	if _, err := svc.GetRank(ctx, 1, "bogus"); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestService_InvalidationTriggersRebuild(t *testing.T) {
	inner := memory.NewStore()
	ids := seedAwards(t, inner)
	store := &countingStore{Storage: inner}
	svc := New(store, testLogger())
	ctx := context.Background()

	if _, err := svc.GetRanking(ctx, CategoryOverall, 10, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetRanking(ctx, CategoryOverall, 10, 0); err != nil {
		t.Fatal(err)
	}
	if n := store.aggregates.Load(); n != 1 {
		t.Fatalf("repeated reads of a valid view must not rebuild, got %d aggregate calls", n)
	}

	// A new award changes the standings; the next read sees it.
	award := &storage.UserAward{UserID: 9, TemplateID: ids["pioneer"], Tier: 2, GrantedAt: time.Now().UTC(), UpgradedAt: time.Now().UTC()}
	if err := inner.CreateUserAward(ctx, award); err != nil {
		t.Fatal(err)
	}
	svc.Invalidate(storage.CategoryDiscovery)

	entry, err := svc.GetRank(ctx, 9, CategoryOverall)
	if err != nil {
		t.Fatalf("GetRank after invalidation failed: %v", err)
	}
	if entry.Score != 20 {
		t.Errorf("expected rebuilt view to include the new award, got %+v", entry)
	}
	if n := store.aggregates.Load(); n != 2 {
		t.Errorf("expected exactly one rebuild after invalidation, got %d aggregate calls", n)
	}
}

func TestService_InvalidationDuringRebuildIsNotLost(t *testing.T) {
	inner := memory.NewStore()
	ids := seedAwards(t, inner)
	store := &gatedStore{Storage: inner, reading: make(chan struct{}), release: make(chan struct{})}
	svc := New(store, testLogger())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetRanking(ctx, string(storage.CategoryDiscovery), 10, 0)
		done <- err
	}()

	// The rebuild has read the two-user standings and is paused. A grant
	// and its invalidation land before the view is stored; the rebuild
	// must not publish its now-stale view over them.
	<-store.reading
	award := &storage.UserAward{UserID: 9, TemplateID: ids["pioneer"], Tier: 1, GrantedAt: time.Now().UTC(), UpgradedAt: time.Now().UTC()}
	if err := inner.CreateUserAward(ctx, award); err != nil {
		t.Fatal(err)
	}
	svc.Invalidate(storage.CategoryDiscovery)
	close(store.release)

	if err := <-done; err != nil {
		t.Fatalf("gated read failed: %v", err)
	}

	entries, err := svc.GetRanking(ctx, string(storage.CategoryDiscovery), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("ranking after invalidation has %d entries, want 3", len(entries))
	}
}

func TestService_WaitersSurviveLeaderCancellation(t *testing.T) {
	inner := memory.NewStore()
	seedAwards(t, inner)
	store := &countingStore{Storage: inner, delay: 50 * time.Millisecond}
	svc := New(store, testLogger())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = svc.GetRanking(leaderCtx, CategoryOverall, 10, 0)
	}()

	// Give the leader time to start the rebuild, then abandon it. The
	// waiter below shares that rebuild and must still get a view.
	time.Sleep(10 * time.Millisecond)
	cancel()

	entries, err := svc.GetRanking(context.Background(), CategoryOverall, 10, 0)
	if err != nil {
		t.Fatalf("waiter failed after leader cancellation: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	<-leaderDone
}

func TestService_ConcurrentReadsShareOneRebuild(t *testing.T) {
	inner := memory.NewStore()
	seedAwards(t, inner)
	store := &countingStore{Storage: inner, delay: 20 * time.Millisecond}
	svc := New(store, testLogger())

	const readers = 16
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GetRanking(context.Background(), CategoryOverall, 10, 0)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reader %d failed: %v", i, err)
		}
	}
	if n := store.aggregates.Load(); n != 1 {
		t.Errorf("concurrent cold reads should collapse into one rebuild, got %d", n)
	}
}

func TestService_TTLForcesRebuild(t *testing.T) {
	inner := memory.NewStore()
	seedAwards(t, inner)
	store := &countingStore{Storage: inner}
	svc := New(store, testLogger(), WithTTL(30*time.Millisecond))
	ctx := context.Background()

	if _, err := svc.GetRanking(ctx, CategoryOverall, 10, 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := svc.GetRanking(ctx, CategoryOverall, 10, 0); err != nil {
		t.Fatal(err)
	}
	if n := store.aggregates.Load(); n != 2 {
		t.Errorf("expected a TTL-forced rebuild, got %d aggregate calls", n)
	}
}

func TestService_Pagination(t *testing.T) {
	store := memory.NewStore()
	seedAwards(t, store)
	svc := New(store, testLogger())
	ctx := context.Background()

	page, err := svc.GetRanking(ctx, CategoryOverall, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Rank != 1 {
		t.Errorf("unexpected first page: %+v", page)
	}

	page, err = svc.GetRanking(ctx, CategoryOverall, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Rank != 3 {
		t.Errorf("unexpected second page: %+v", page)
	}

	page, err = svc.GetRanking(ctx, CategoryOverall, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Errorf("offset past the end should return an empty page, got %+v", page)
	}
}

// countingStore counts aggregate queries to observe rebuilds.
type countingStore struct {
	storage.Storage
	aggregates atomic.Int64
	delay      time.Duration
}

func (s *countingStore) AggregateAwards(ctx context.Context, category storage.Category) ([]storage.AwardAggregate, error) {
	s.aggregates.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Storage.AggregateAwards(ctx, category)
}

// gatedStore pauses its first aggregate query after the data has been
// read, so the test can land a change mid-rebuild.
type gatedStore struct {
	storage.Storage
	reading chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) AggregateAwards(ctx context.Context, category storage.Category) ([]storage.AwardAggregate, error) {
	aggs, err := s.Storage.AggregateAwards(ctx, category)
	s.once.Do(func() {
		close(s.reading)
		<-s.release
	})
	return aggs, err
}
