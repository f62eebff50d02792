package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/awebisam/chemezy/internal/facts"
	"github.com/awebisam/chemezy/internal/metrics"
	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/synthesis"
)

// Resolution errors.
var (
	// ErrNoReactants is returned for a request without reactants.
	ErrNoReactants = errors.New("at least one reactant is required")

	// ErrUpstream marks a retryable upstream failure (fact retrieval or
	// synthesis). The cache state is left as a clean miss.
	ErrUpstream = errors.New("upstream synthesis unavailable")
)

// Notifier receives evaluation events: a reaction event for every
// successful resolution, and a discovery event when a resolution wins
// one or more world-firsts. Implementations must not block: the
// notification is fire-and-forget relative to the reaction request.
type Notifier interface {
	NotifyReaction(userID int64, cacheKey string, complexity float64)
	NotifyDiscovery(userID int64, effects []string, cacheKey string)
}

// Result is the outcome of one reaction resolution.
type Result struct {
	RequestID  string
	Outcome    *storage.OutcomeRecord
	WorldFirst bool
	NewEffects []string
}

// Cache is the deterministic reaction cache. Identical inputs always
// yield identical outputs; concurrent misses for the same key collapse to
// a single synthesis.
type Cache struct {
	store    storage.Storage
	facts    facts.Client
	synth    synthesis.Synthesizer
	ledger   *Ledger
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithNotifier sets the discovery event notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Cache) { c.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTimeout bounds the miss-resolution path (facts + synthesis +
// persistence) for the single-flight leader.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// New creates a reaction cache.
func New(store storage.Storage, factsClient facts.Client, synth synthesis.Synthesizer, ledger *Ledger, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:   store,
		facts:   factsClient,
		synth:   synth,
		ledger:  ledger,
		logger:  logger,
		timeout: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolution is the shared result of a single-flight miss computation.
type resolution struct {
	record     *storage.OutcomeRecord
	worldFirst bool
	newEffects []string
}

// Resolve returns the outcome for a reaction request. A hit serves the
// stored outcome; a miss runs fact retrieval and synthesis exactly once
// per key, no matter how many callers are waiting.
func (c *Cache) Resolve(ctx context.Context, userID int64, reactants []string, environment, catalyst string) (*Result, error) {
	normalized := NormalizeReactants(reactants)
	if len(normalized) == 0 {
		return nil, ErrNoReactants
	}
	env := NormalizeEnvironment(environment)
	key := ComputeKey(normalized, env, catalyst)
	requestID := uuid.NewString()

	record, err := c.store.GetOutcome(ctx, key)
	if err == nil {
		if c.metrics != nil {
			c.metrics.RecordCacheAccess(true)
		}
		if c.notifier != nil {
			c.notifier.NotifyReaction(userID, key, complexityOf(record))
		}
		return &Result{RequestID: requestID, Outcome: record, WorldFirst: false}, nil
	}
	if !errors.Is(err, storage.ErrOutcomeNotFound) {
		// Read failure degrades to a miss rather than failing the request
		c.logger.Error("cache read failed, treating as miss",
			slog.String("cache_key", key),
			slog.String("error", err.Error()),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheAccess(false)
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// The computation is detached from the caller's context: a caller
		// abandoning the request must not cancel work other waiters and
		// future requests benefit from.
		leaderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.resolveMiss(leaderCtx, key, userID, normalized, env, catalyst)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*resolution)
	// Every waiter resolved this reaction, so each gets its own event.
	if c.notifier != nil {
		c.notifier.NotifyReaction(userID, key, complexityOf(res.record))
	}
	result := &Result{
		RequestID:  requestID,
		Outcome:    res.record,
		WorldFirst: res.worldFirst,
		NewEffects: res.newEffects,
	}
	if shared {
		c.logger.Debug("miss resolution shared with concurrent callers",
			slog.String("cache_key", key))
	}
	return result, nil
}

// resolveMiss is the single-flight leader path: fetch facts, synthesize,
// persist, record discoveries, notify.
func (c *Cache) resolveMiss(ctx context.Context, key string, userID int64, reactants []string, environment, catalyst string) (*resolution, error) {
	factCtx, err := c.facts.Fetch(ctx, reactants)
	if err != nil {
		return nil, fmt.Errorf("%w: fact retrieval: %v", ErrUpstream, err)
	}

	start := time.Now()
	outcome, err := c.synth.Synthesize(ctx, &synthesis.Request{
		Reactants:   reactants,
		Environment: environment,
		Catalyst:    catalyst,
		Facts:       factCtx,
	})
	if c.metrics != nil {
		c.metrics.RecordSynthesis(time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	record := &storage.OutcomeRecord{
		CacheKey:    key,
		Reactants:   reactants,
		Environment: environment,
		Catalyst:    catalyst,
		Products:    outcome.Products,
		Effects:     outcome.Effects,
		StateChange: outcome.StateChange,
		Explanation: outcome.Explanation,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := c.store.PutOutcome(ctx, record); err != nil {
		if errors.Is(err, storage.ErrOutcomeExists) {
			// Another process won the write; its resolution owns any
			// world-firsts. Serve the stored record.
			stored, getErr := c.store.GetOutcome(ctx, key)
			if getErr == nil {
				return &resolution{record: stored}, nil
			}
			err = getErr
		}
		// Fail-open: the caller still gets the computed value, but the
		// result is not durable and discoveries are not claimed. The next
		// request recomputes and records.
		c.logger.Error("outcome persistence failed, serving uncached result",
			slog.String("cache_key", key),
			slog.String("error", err.Error()),
		)
		return &resolution{record: record}, nil
	}

	newEffects := c.recordDiscoveries(ctx, record, userID)
	if len(newEffects) > 0 && c.notifier != nil {
		c.notifier.NotifyDiscovery(userID, newEffects, key)
	}

	return &resolution{
		record:     record,
		worldFirst: len(newEffects) > 0,
		newEffects: newEffects,
	}, nil
}

// complexityOf scores a resolved reaction by how much is going on in
// it: each reactant, product and effect counts for one.
func complexityOf(record *storage.OutcomeRecord) float64 {
	return float64(len(record.Reactants) + len(record.Products) + len(record.Effects))
}

// recordDiscoveries claims world-firsts for each effect tag. Losing the
// race is normal; a ledger failure is logged and skips only that tag.
func (c *Cache) recordDiscoveries(ctx context.Context, record *storage.OutcomeRecord, userID int64) []string {
	var newEffects []string
	for _, effect := range record.Effects {
		won, err := c.ledger.TryRecordFirst(ctx, effect, userID, record.CacheKey)
		if err != nil {
			c.logger.Error("discovery recording failed",
				slog.String("effect", effect),
				slog.String("error", err.Error()),
			)
			continue
		}
		if won {
			newEffects = append(newEffects, effect)
			if c.metrics != nil {
				c.metrics.RecordDiscovery()
			}
		}
	}
	return newEffects
}
