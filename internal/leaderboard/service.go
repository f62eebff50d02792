package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/awebisam/chemezy/internal/metrics"
	"github.com/awebisam/chemezy/internal/storage"
)

// CategoryOverall ranks across every award category at once. It is a
// ranking category only, never a template category.
const CategoryOverall = "overall"

var (
	ErrInvalidCategory = errors.New("invalid leaderboard category")
	ErrNotRanked       = errors.New("user is not ranked in this category")
)

// Entry is one row of a category ranking.
type Entry struct {
	Rank           int       `json:"rank"`
	UserID         int64     `json:"user_id"`
	Score          int64     `json:"score"`
	Awards         int       `json:"awards"`
	FirstGrantedAt time.Time `json:"first_granted_at"`
}

// view is a materialized ranking for one category. Views are replaced
// wholesale on rebuild, never patched.
type view struct {
	entries []Entry
	ranks   map[int64]int
	builtAt time.Time
}

// Service serves award rankings from per-category materialized views.
// A view is invalidated by any award change in its category and rebuilt
// synchronously on the next read; concurrent readers of a stale view
// share one rebuild. A max-age TTL bounds staleness for categories that
// see reads but no invalidations.
type Service struct {
	store   storage.Storage
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	views map[string]*view
	gens  map[string]uint64
}

// rebuildTimeout bounds a view rebuild. Rebuilds are detached from the
// requesting caller's context, so they need their own deadline.
const rebuildTimeout = 30 * time.Second

// rebuildAttempts caps how often a rebuild re-reads after losing a race
// with an invalidation.
const rebuildAttempts = 3

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the maximum age a view may serve without a rebuild.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMetrics wires rebuild and invalidation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a leaderboard service. Every view starts invalid and is
// built on first read.
func New(store storage.Storage, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.With(slog.String("component", "leaderboard")),
		ttl:    5 * time.Minute,
		views:  make(map[string]*view),
		gens:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate discards the materialized view for a category. The overall
// view aggregates every category, so it is discarded too. Safe to call
// from any goroutine; readers in flight keep the view they already hold.
func (s *Service) Invalidate(category storage.Category) {
	s.mu.Lock()
	delete(s.views, string(category))
	delete(s.views, CategoryOverall)
	// The generation bump tells an in-flight rebuild that its data read
	// predates this change, so it must not store its view.
	s.gens[string(category)]++
	s.gens[CategoryOverall]++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLeaderboardInvalidation(string(category))
	}
	s.logger.Debug("leaderboard invalidated", slog.String("category", string(category)))
}

// GetRanking returns a page of the category ranking.
func (s *Service) GetRanking(ctx context.Context, category string, limit, offset int) ([]Entry, error) {
	v, err := s.currentView(ctx, category)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(v.entries) {
		return []Entry{}, nil
	}
	end := len(v.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]Entry, end-offset)
	copy(page, v.entries[offset:end])
	return page, nil
}

// GetRank returns a single user's entry in the category ranking.
func (s *Service) GetRank(ctx context.Context, userID int64, category string) (*Entry, error) {
	v, err := s.currentView(ctx, category)
	if err != nil {
		return nil, err
	}
	idx, ok := v.ranks[userID]
	if !ok {
		return nil, ErrNotRanked
	}
	entry := v.entries[idx]
	return &entry, nil
}

func validCategory(category string) bool {
	if category == CategoryOverall {
		return true
	}
	return storage.Category(category).Valid()
}

// currentView returns a fresh-enough view for the category, rebuilding
// through singleflight when the view is missing or past its TTL.
func (s *Service) currentView(ctx context.Context, category string) (*view, error) {
	if !validCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	s.mu.RLock()
	v, ok := s.views[category]
	s.mu.RUnlock()
	if ok && time.Since(v.builtAt) < s.ttl {
		return v, nil
	}

	built, err, _ := s.group.Do(category, func() (any, error) {
		// A rebuild may have landed while this caller queued.
		s.mu.RLock()
		v, ok := s.views[category]
		s.mu.RUnlock()
		if ok && time.Since(v.builtAt) < s.ttl {
			return v, nil
		}
		// The rebuild is shared by every collapsed waiter, so it must not
		// die with whichever caller reached it first.
		rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rebuildTimeout)
		defer cancel()
		return s.rebuild(rebuildCtx, category)
	})
	if err != nil {
		return nil, err
	}
	return built.(*view), nil
}

func (s *Service) rebuild(ctx context.Context, category string) (*view, error) {
	filter := storage.Category(category)
	if category == CategoryOverall {
		filter = ""
	}

	start := time.Now()

	var v *view
	for attempt := 1; ; attempt++ {
		s.mu.RLock()
		gen := s.gens[category]
		s.mu.RUnlock()

		aggregates, err := s.store.AggregateAwards(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("aggregate awards: %w", err)
		}
		v = materialize(aggregates)

		s.mu.Lock()
		stale := s.gens[category] != gen
		if !stale {
			s.views[category] = v
		}
		s.mu.Unlock()
		if !stale {
			break
		}
		// An invalidation landed between the data read and the store; the
		// view may predate the change. Re-read, or on the last attempt
		// serve the view without caching it so the next read rebuilds.
		if attempt >= rebuildAttempts {
			s.logger.Warn("leaderboard rebuild raced invalidations, serving uncached",
				slog.String("category", category))
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RecordLeaderboardRebuild(category)
	}
	s.logger.Debug("leaderboard rebuilt",
		slog.String("category", category),
		slog.Int("entries", len(v.entries)),
		slog.Duration("took", time.Since(start)),
	)
	return v, nil
}

// materialize turns award aggregates into a ranked view. Rankings must
// be fully deterministic: score descending, then earliest first grant,
// then user id.
func materialize(aggregates []storage.AwardAggregate) *view {
	sort.Slice(aggregates, func(i, j int) bool {
		a, b := aggregates[i], aggregates[j]
		if a.TierPoints != b.TierPoints {
			return a.TierPoints > b.TierPoints
		}
		if !a.FirstGrantedAt.Equal(b.FirstGrantedAt) {
			return a.FirstGrantedAt.Before(b.FirstGrantedAt)
		}
		return a.UserID < b.UserID
	})

	v := &view{
		entries: make([]Entry, len(aggregates)),
		ranks:   make(map[int64]int, len(aggregates)),
		builtAt: time.Now(),
	}
	for i, agg := range aggregates {
		v.entries[i] = Entry{
			Rank:           i + 1,
			UserID:         agg.UserID,
			Score:          agg.TierPoints,
			Awards:         agg.Awards,
			FirstGrantedAt: agg.FirstGrantedAt,
		}
		v.ranks[agg.UserID] = i
	}
	return v
}
