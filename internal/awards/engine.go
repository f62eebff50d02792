package awards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awebisam/chemezy/internal/metrics"
	"github.com/awebisam/chemezy/internal/storage"
)

// Event kinds that trigger award evaluation.
const (
	EventReaction     = "reaction"
	EventDiscovery    = "discovery"
	EventContribution = "contribution"
)

// Event describes an activity that may advance a user's awards. The
// engine recomputes from current statistics, so a lost event is healed
// by the next one for the same user.
type Event struct {
	Kind       string
	UserID     int64
	Effects    []string
	CacheKey   string
	Complexity float64
	OccurredAt time.Time
}

// ChangeKind distinguishes a fresh grant from a tier upgrade.
type ChangeKind string

const (
	ChangeGranted  ChangeKind = "granted"
	ChangeUpgraded ChangeKind = "upgraded"
)

// Change records one award mutation produced by an evaluation.
type Change struct {
	Kind         ChangeKind
	TemplateID   int64
	TemplateName string
	Category     storage.Category
	Tier         int
	TierName     string
}

// Progress reports how far a user is toward the next tier of a template.
type Progress struct {
	TemplateID   int64            `json:"template_id"`
	TemplateName string           `json:"template_name"`
	Category     storage.Category `json:"category"`
	Description  string           `json:"description"`
	Current      float64          `json:"current"`
	Target       float64          `json:"target"`
	Fraction     float64          `json:"fraction"`
	Tier         int              `json:"tier"`
	Completed    bool             `json:"completed"`
}

// Invalidator is notified whenever awards in a category change, so
// derived rankings can be rebuilt.
type Invalidator interface {
	Invalidate(category storage.Category)
}

// Engine evaluates award templates against user statistics. Evaluation
// is idempotent: re-running an event without stat changes grants nothing.
type Engine struct {
	store       storage.Storage
	invalidator Invalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics

	// quarantine remembers template versions already reported as
	// malformed so the log carries each problem once.
	mu         sync.Mutex
	quarantine map[string]struct{}
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithInvalidator wires ranking invalidation into award changes.
func WithInvalidator(inv Invalidator) EngineOption {
	return func(e *Engine) { e.invalidator = inv }
}

// WithMetrics wires evaluation metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an award evaluation engine.
func NewEngine(store storage.Storage, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		logger:     logger.With(slog.String("component", "awards")),
		quarantine: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate recomputes every active template against the user's current
// statistics and grants or upgrades awards whose thresholds are newly
// met. Per-template failures are isolated: evaluation continues and the
// collected errors are joined into the returned error alongside any
// changes that did succeed.
func (e *Engine) Evaluate(ctx context.Context, userID int64, evt *Event) ([]Change, error) {
	stats, err := e.store.GetUserStats(ctx, userID)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordEvaluation(true)
		}
		return nil, fmt.Errorf("load user stats: %w", err)
	}

	templates, err := e.store.ListTemplates(ctx, true)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordEvaluation(true)
		}
		return nil, fmt.Errorf("list templates: %w", err)
	}

	var (
		changes []Change
		errs    []error
	)
	for _, tmpl := range templates {
		change, err := e.evaluateTemplate(ctx, tmpl, stats, evt, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %q: %w", tmpl.Name, err))
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}

	for _, change := range changes {
		e.logger.Info("award "+string(change.Kind),
			slog.Int64("user_id", userID),
			slog.String("template", change.TemplateName),
			slog.Int("tier", change.Tier),
			slog.String("tier_name", change.TierName),
		)
		if e.metrics != nil {
			e.metrics.RecordAwardChange(string(change.Kind))
		}
		if e.invalidator != nil {
			e.invalidator.Invalidate(change.Category)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordEvaluation(len(errs) > 0)
	}
	return changes, errors.Join(errs...)
}

func (e *Engine) evaluateTemplate(ctx context.Context, tmpl *storage.AwardTemplate, stats *storage.UserStats, evt *Event, userID int64) (*Change, error) {
	crit, err := decodeCriteria(tmpl.Criteria)
	if err != nil {
		e.reportQuarantine(tmpl, err)
	}
	if len(tmpl.Tiers) == 0 {
		e.reportQuarantine(tmpl, errors.New("no tiers configured"))
		return nil, nil
	}

	current := crit.measure(stats, evt)
	tier := highestTier(tmpl.Tiers, current)
	if tier == 0 {
		return nil, nil
	}

	target := tmpl.Tiers[tier-1].Threshold
	progress := storage.ProgressSnapshot{Current: current, Target: target}
	now := time.Now().UTC()

	existing, err := e.store.GetUserAward(ctx, userID, tmpl.ID)
	if errors.Is(err, storage.ErrAwardNotFound) {
		award := &storage.UserAward{
			UserID:     userID,
			TemplateID: tmpl.ID,
			Tier:       tier,
			Progress:   progress,
			GrantedAt:  now,
			UpgradedAt: now,
		}
		if evt != nil {
			award.RelatedType = evt.Kind
			award.RelatedID = evt.CacheKey
		}
		if err := e.store.CreateUserAward(ctx, award); err != nil {
			if errors.Is(err, storage.ErrAwardExists) {
				// Lost a concurrent grant race; the other evaluation
				// owns the change.
				return nil, nil
			}
			return nil, fmt.Errorf("create award: %w", err)
		}
		return &Change{
			Kind:         ChangeGranted,
			TemplateID:   tmpl.ID,
			TemplateName: tmpl.Name,
			Category:     tmpl.Category,
			Tier:         tier,
			TierName:     tmpl.Tiers[tier-1].Name,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load award: %w", err)
	}

	// Tiers only move forward automatically. Downgrades are an
	// explicit admin operation.
	if tier <= existing.Tier {
		return nil, nil
	}
	if err := e.store.UpdateUserAwardTier(ctx, userID, tmpl.ID, tier, progress, now); err != nil {
		return nil, fmt.Errorf("advance tier: %w", err)
	}
	return &Change{
		Kind:         ChangeUpgraded,
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		Category:     tmpl.Category,
		Tier:         tier,
		TierName:     tmpl.Tiers[tier-1].Name,
	}, nil
}

func (e *Engine) reportQuarantine(tmpl *storage.AwardTemplate, reason error) {
	key := fmt.Sprintf("%d@%d", tmpl.ID, tmpl.Version)
	e.mu.Lock()
	_, seen := e.quarantine[key]
	if !seen {
		e.quarantine[key] = struct{}{}
	}
	e.mu.Unlock()
	if !seen {
		e.logger.Warn("award template quarantined",
			slog.Int64("template_id", tmpl.ID),
			slog.String("template", tmpl.Name),
			slog.String("reason", reason.Error()),
		)
	}
}

// UserProgress reports the user's standing against every active
// template, including templates the user has no award for yet.
func (e *Engine) UserProgress(ctx context.Context, userID int64) ([]Progress, error) {
	stats, err := e.store.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}
	templates, err := e.store.ListTemplates(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	reports := make([]Progress, 0, len(templates))
	for _, tmpl := range templates {
		crit, decodeErr := decodeCriteria(tmpl.Criteria)
		if decodeErr != nil || len(tmpl.Tiers) == 0 {
			continue
		}
		current := crit.measure(stats, nil)
		if current < 0 {
			current = 0
		}
		report := Progress{
			TemplateID:   tmpl.ID,
			TemplateName: tmpl.Name,
			Category:     tmpl.Category,
			Description:  tmpl.Description,
			Current:      current,
			Tier:         highestTier(tmpl.Tiers, current),
		}
		if target, ok := nextThreshold(tmpl.Tiers, current); ok {
			report.Target = target
			if target > 0 {
				report.Fraction = current / target
			}
		} else {
			report.Target = tmpl.Tiers[len(tmpl.Tiers)-1].Threshold
			report.Fraction = 1
			report.Completed = true
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Grant creates an award for a user at an explicit tier, bypassing
// criteria evaluation. Admin path only.
func (e *Engine) Grant(ctx context.Context, adminID, userID, templateID int64, tier int) (*storage.UserAward, error) {
	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Active {
		return nil, storage.ErrTemplateDeactivated
	}
	if tier < 1 || tier > len(tmpl.Tiers) {
		return nil, fmt.Errorf("tier %d out of range for template %q (1..%d)", tier, tmpl.Name, len(tmpl.Tiers))
	}

	now := time.Now().UTC()
	award := &storage.UserAward{
		UserID:     userID,
		TemplateID: templateID,
		Tier:       tier,
		Progress:   storage.ProgressSnapshot{Current: tmpl.Tiers[tier-1].Threshold, Target: tmpl.Tiers[tier-1].Threshold},
		GrantedAt:  now,
		UpgradedAt: now,
	}
	if err := e.store.CreateUserAward(ctx, award); err != nil {
		return nil, err
	}

	e.logger.Info("award granted by admin",
		slog.Int64("admin_id", adminID),
		slog.Int64("user_id", userID),
		slog.String("template", tmpl.Name),
		slog.Int("tier", tier),
	)
	e.afterChange("granted", tmpl.Category)
	return award, nil
}

// SetTier explicitly sets an existing award's tier, up or down.
// Admin path only.
func (e *Engine) SetTier(ctx context.Context, adminID, userID, templateID int64, tier int) error {
	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if tier < 1 || tier > len(tmpl.Tiers) {
		return fmt.Errorf("tier %d out of range for template %q (1..%d)", tier, tmpl.Name, len(tmpl.Tiers))
	}
	existing, err := e.store.GetUserAward(ctx, userID, templateID)
	if err != nil {
		return err
	}

	progress := storage.ProgressSnapshot{
		Current: tmpl.Tiers[tier-1].Threshold,
		Target:  tmpl.Tiers[tier-1].Threshold,
	}
	if err := e.store.UpdateUserAwardTier(ctx, userID, templateID, tier, progress, time.Now().UTC()); err != nil {
		return err
	}

	e.logger.Warn("award tier set by admin",
		slog.Int64("admin_id", adminID),
		slog.Int64("user_id", userID),
		slog.String("template", tmpl.Name),
		slog.Int("previous_tier", existing.Tier),
		slog.Int("tier", tier),
	)
	e.afterChange("tier_set", tmpl.Category)
	return nil
}

// Revoke removes a user's award. Admin path only.
func (e *Engine) Revoke(ctx context.Context, adminID, userID, templateID int64, reason string) error {
	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteUserAward(ctx, userID, templateID); err != nil {
		return err
	}

	e.logger.Warn("award revoked by admin",
		slog.Int64("admin_id", adminID),
		slog.Int64("user_id", userID),
		slog.String("template", tmpl.Name),
		slog.String("reason", reason),
	)
	e.afterChange("revoked", tmpl.Category)
	return nil
}

func (e *Engine) afterChange(change string, category storage.Category) {
	if e.metrics != nil {
		e.metrics.RecordAwardChange(change)
	}
	if e.invalidator != nil {
		e.invalidator.Invalidate(category)
	}
}
