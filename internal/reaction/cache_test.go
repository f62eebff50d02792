package reaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/facts"
	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/storage/memory"
	"github.com/awebisam/chemezy/internal/synthesis"
)

func newTestCache(t *testing.T, synth synthesis.Synthesizer, opts ...Option) (*Cache, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := NewLedger(store, logger)
	cache := New(store, &facts.Static{}, synth, ledger, logger, opts...)
	return cache, store
}

type recordingNotifier struct {
	mu        sync.Mutex
	events    []notifierEvent
	reactions []reactionEvent
}

type notifierEvent struct {
	userID  int64
	effects []string
}

type reactionEvent struct {
	userID     int64
	complexity float64
}

func (n *recordingNotifier) NotifyDiscovery(userID int64, effects []string, cacheKey string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{userID: userID, effects: effects})
}

func (n *recordingNotifier) NotifyReaction(userID int64, cacheKey string, complexity float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reactions = append(n.reactions, reactionEvent{userID: userID, complexity: complexity})
}

func TestCache_Resolve_FirstCallIsWorldFirst(t *testing.T) {
	mock := &synthesis.Mock{Outcome: &synthesis.Outcome{
		Products:    []storage.Product{{Formula: "NaCl(aq)", Name: "Saltwater", Phase: "liquid"}},
		Effects:     []string{"dissolving"},
		Explanation: "salt dissolves in water",
	}}
	notifier := &recordingNotifier{}
	cache, _ := newTestCache(t, mock, WithNotifier(notifier))

	result, err := cache.Resolve(context.Background(), 1, []string{"H2O", "NaCl"}, "Earth", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.WorldFirst {
		t.Error("first resolution should be a world first")
	}
	if len(result.NewEffects) != 1 || result.NewEffects[0] != "dissolving" {
		t.Errorf("unexpected new effects: %v", result.NewEffects)
	}
	if result.RequestID == "" {
		t.Error("expected a request id")
	}
	if mock.Calls != 1 {
		t.Errorf("expected one synthesis call, got %d", mock.Calls)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].userID != 1 {
		t.Errorf("expected one discovery notification for user 1, got %+v", notifier.events)
	}
}

func TestCache_Resolve_EmitsReactionEventWithComplexity(t *testing.T) {
	mock := &synthesis.Mock{Outcome: &synthesis.Outcome{
		Products:    []storage.Product{{Formula: "NaCl(aq)", Name: "Saltwater", Phase: "liquid"}},
		Effects:     []string{"dissolving"},
		Explanation: "salt dissolves in water",
	}}
	notifier := &recordingNotifier{}
	cache, _ := newTestCache(t, mock, WithNotifier(notifier))
	ctx := context.Background()

	// Miss for user 1, then a hit for user 2: both resolved the
	// reaction, so both get an event with its complexity.
	if _, err := cache.Resolve(ctx, 1, []string{"H2O", "NaCl"}, "earth", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := cache.Resolve(ctx, 2, []string{"NaCl", "H2O"}, "earth", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.reactions) != 2 {
		t.Fatalf("expected 2 reaction events, got %d", len(notifier.reactions))
	}
	// 2 reactants + 1 product + 1 effect
	for i, want := range []reactionEvent{{userID: 1, complexity: 4}, {userID: 2, complexity: 4}} {
		if notifier.reactions[i] != want {
			t.Errorf("event %d: expected %+v, got %+v", i, want, notifier.reactions[i])
		}
	}
}

func TestCache_Resolve_SecondCallIsHit(t *testing.T) {
	mock := &synthesis.Mock{Outcome: &synthesis.Outcome{
		Products:    []storage.Product{{Formula: "NaCl(aq)", Name: "Saltwater", Phase: "liquid"}},
		Effects:     []string{"dissolving"},
		Explanation: "salt dissolves in water",
	}}
	cache, _ := newTestCache(t, mock)
	ctx := context.Background()

	first, err := cache.Resolve(ctx, 1, []string{"H2O", "NaCl"}, "Earth", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	second, err := cache.Resolve(ctx, 2, []string{"NaCl", "H2O"}, "earth", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if second.WorldFirst {
		t.Error("cache hit must not be a world first")
	}
	if len(second.NewEffects) != 0 {
		t.Errorf("cache hit must not claim discoveries: %v", second.NewEffects)
	}
	if second.Outcome.Explanation != first.Outcome.Explanation {
		t.Error("hit returned a different outcome")
	}
	if mock.Calls != 1 {
		t.Errorf("expected one synthesis call total, got %d", mock.Calls)
	}
}

func TestCache_Resolve_SingleFlight(t *testing.T) {
	mock := &synthesis.Mock{
		Delay: 50 * time.Millisecond,
		Outcome: &synthesis.Outcome{
			Products:    []storage.Product{{Formula: "X", Name: "X", Phase: "solid"}},
			Effects:     []string{"glowing"},
			Explanation: "test",
		},
	}
	cache, _ := newTestCache(t, mock)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Resolve(context.Background(), int64(i+1), []string{"A", "B"}, "earth", "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].Outcome.Explanation != "test" {
			t.Errorf("caller %d got a different outcome", i)
		}
	}
	if mock.Calls != 1 {
		t.Errorf("expected exactly one synthesis under concurrency, got %d", mock.Calls)
	}
}

func TestCache_Resolve_NoReactants(t *testing.T) {
	cache, _ := newTestCache(t, &synthesis.Mock{})

	if _, err := cache.Resolve(context.Background(), 1, nil, "earth", ""); !errors.Is(err, ErrNoReactants) {
		t.Errorf("expected ErrNoReactants, got %v", err)
	}
	if _, err := cache.Resolve(context.Background(), 1, []string{"  "}, "earth", ""); !errors.Is(err, ErrNoReactants) {
		t.Errorf("expected ErrNoReactants for blank reactants, got %v", err)
	}
}

func TestCache_Resolve_SynthesisFailureIsCleanMiss(t *testing.T) {
	mock := &synthesis.Mock{Err: errors.New("model overloaded")}
	cache, store := newTestCache(t, mock)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, 1, []string{"A"}, "earth", "")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	// The failed miss left no partial state: a retry resolves fresh
	key := ComputeKey([]string{"A"}, "earth", "")
	if _, err := store.GetOutcome(ctx, key); !errors.Is(err, storage.ErrOutcomeNotFound) {
		t.Errorf("failed miss should leave a clean cache: %v", err)
	}

	mock.Err = nil
	result, err := cache.Resolve(ctx, 1, []string{"A"}, "earth", "")
	if err != nil {
		t.Fatalf("retry after upstream failure should succeed: %v", err)
	}
	if !result.WorldFirst {
		t.Error("retry that wins the synthesis should claim the discovery")
	}
}

func TestCache_Resolve_FactFailureIsRetryable(t *testing.T) {
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := New(store, &facts.Static{Err: errors.New("pubchem down")}, &synthesis.Mock{}, NewLedger(store, logger), logger)

	if _, err := cache.Resolve(context.Background(), 1, []string{"A"}, "earth", ""); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream on fact failure, got %v", err)
	}
}

func TestCache_Resolve_PersistenceFailureFailsOpen(t *testing.T) {
	mock := &synthesis.Mock{Outcome: &synthesis.Outcome{
		Products:    []storage.Product{{Formula: "X", Name: "X", Phase: "solid"}},
		Effects:     []string{"sparking"},
		Explanation: "ok",
	}}
	store := &failingStore{Storage: memory.NewStore(), failPut: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := New(store, &facts.Static{}, mock, NewLedger(store, logger), logger)

	result, err := cache.Resolve(context.Background(), 1, []string{"A"}, "earth", "")
	if err != nil {
		t.Fatalf("persistence failure must not fail the request: %v", err)
	}
	if result.Outcome.Explanation != "ok" {
		t.Error("expected the computed outcome despite the write failure")
	}
	if result.WorldFirst {
		t.Error("an undurable resolution must not claim discoveries")
	}

	// Next request recomputes: nothing was cached
	store.failPut = false
	second, err := cache.Resolve(context.Background(), 2, []string{"A"}, "earth", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mock.Calls != 2 {
		t.Errorf("expected recomputation after failed persist, got %d calls", mock.Calls)
	}
	if !second.WorldFirst {
		t.Error("the first durable resolution should claim the discovery")
	}
}

func TestCache_Resolve_ConcurrentWriterWinsElsewhere(t *testing.T) {
	// Simulates another process inserting the outcome between this miss
	// and its persist.
	inner := memory.NewStore()
	stored := &storage.OutcomeRecord{
		CacheKey:    ComputeKey([]string{"A"}, "earth", ""),
		Reactants:   []string{"A"},
		Environment: "earth",
		Explanation: "their result",
		UserID:      99,
	}
	store := &failingStore{Storage: inner, putExists: stored}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := New(store, &facts.Static{}, &synthesis.Mock{}, NewLedger(store, logger), logger)

	result, err := cache.Resolve(context.Background(), 1, []string{"A"}, "earth", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.WorldFirst {
		t.Error("losing the persist race must not claim a world first")
	}
	if result.Outcome.Explanation != "their result" {
		t.Errorf("expected the stored outcome, got %q", result.Outcome.Explanation)
	}
}

// failingStore wraps a memory store to inject persistence failures.
type failingStore struct {
	storage.Storage
	failPut   bool
	putExists *storage.OutcomeRecord
}

func (f *failingStore) PutOutcome(ctx context.Context, record *storage.OutcomeRecord) error {
	if f.failPut {
		return errors.New("disk full")
	}
	if f.putExists != nil {
		if err := f.Storage.PutOutcome(ctx, f.putExists); err != nil && !errors.Is(err, storage.ErrOutcomeExists) {
			return err
		}
		f.putExists = nil
		return storage.ErrOutcomeExists
	}
	return f.Storage.PutOutcome(ctx, record)
}

func TestLedger_TryRecordFirst(t *testing.T) {
	store := memory.NewStore()
	ledger := NewLedger(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	won, err := ledger.TryRecordFirst(ctx, "levitation", 1, "key1")
	if err != nil {
		t.Fatalf("TryRecordFirst failed: %v", err)
	}
	if !won {
		t.Error("first caller should win")
	}

	won, err = ledger.TryRecordFirst(ctx, "levitation", 2, "key2")
	if err != nil {
		t.Fatalf("TryRecordFirst failed: %v", err)
	}
	if won {
		t.Error("second caller must not win")
	}

	record, err := ledger.First(ctx, "levitation")
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if record.UserID != 1 {
		t.Errorf("expected user 1 to own the discovery, got %d", record.UserID)
	}
}

func TestLedger_Revoke(t *testing.T) {
	store := memory.NewStore()
	ledger := NewLedger(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if err := ledger.Revoke(ctx, "ghost", 1, "test"); !errors.Is(err, storage.ErrDiscoveryNotFound) {
		t.Errorf("expected ErrDiscoveryNotFound, got %v", err)
	}

	if _, err := ledger.TryRecordFirst(ctx, "haunting", 1, "k"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Revoke(ctx, "haunting", 42, "fabricated result"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// The effect is claimable again after revocation
	won, err := ledger.TryRecordFirst(ctx, "haunting", 2, "k2")
	if err != nil {
		t.Fatal(err)
	}
	if !won {
		t.Error("revoked effect should be claimable again")
	}
}
