// Package storage provides storage interfaces and implementations for chemezy.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound            = errors.New("not found")
	ErrOutcomeNotFound     = errors.New("reaction outcome not found")
	ErrOutcomeExists       = errors.New("reaction outcome already exists")
	ErrDiscoveryNotFound   = errors.New("discovery not found")
	ErrDiscoveryExists     = errors.New("discovery already recorded")
	ErrTemplateNotFound    = errors.New("award template not found")
	ErrTemplateExists      = errors.New("award template already exists")
	ErrAwardNotFound       = errors.New("user award not found")
	ErrAwardExists         = errors.New("user award already exists")
	ErrTemplateDeactivated = errors.New("award template is deactivated")
)

// Category represents an award category.
type Category string

const (
	CategoryDiscovery    Category = "discovery"
	CategoryContribution Category = "contribution"
	CategoryCommunity    Category = "community"
	CategorySpecial      Category = "special"
	CategoryAchievement  Category = "achievement"
)

// Categories lists every valid award category.
func Categories() []Category {
	return []Category{
		CategoryDiscovery,
		CategoryContribution,
		CategoryCommunity,
		CategorySpecial,
		CategoryAchievement,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryDiscovery, CategoryContribution, CategoryCommunity, CategorySpecial, CategoryAchievement:
		return true
	}
	return false
}

// Product represents a single reaction product.
type Product struct {
	Formula string `json:"formula"`
	Name    string `json:"name"`
	Phase   string `json:"phase"`
}

// OutcomeRecord represents a stored reaction outcome, keyed by its
// deterministic cache key. Records are immutable once written.
type OutcomeRecord struct {
	ID          int64     `json:"id"`
	CacheKey    string    `json:"cache_key"`
	Reactants   []string  `json:"reactants"`
	Environment string    `json:"environment"`
	Catalyst    string    `json:"catalyst,omitempty"`
	Products    []Product `json:"products"`
	Effects     []string  `json:"effects"`
	StateChange string    `json:"state_change,omitempty"`
	Explanation string    `json:"explanation"`
	UserID      int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiscoveryRecord represents the first-ever occurrence of an effect.
// At most one record exists per effect, ever.
type DiscoveryRecord struct {
	ID           int64     `json:"id"`
	Effect       string    `json:"effect"`
	UserID       int64     `json:"user_id"`
	CacheKey     string    `json:"cache_key"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CriteriaSpec is the stored form of an award criteria specification.
// The awards package decodes the kind into a closed set of typed variants;
// unknown kinds are quarantined there, not here.
type CriteriaSpec struct {
	Kind           string  `json:"kind"`
	Threshold      float64 `json:"threshold"`
	MinSubmissions int     `json:"min_submissions,omitempty"`
}

// TierSpec is a single tier threshold. Tiers are stored in ascending
// threshold order; tier numbers are 1-based positions in that order.
type TierSpec struct {
	Threshold float64 `json:"threshold"`
	Name      string  `json:"name"`
}

// AwardTemplate defines a grantable award with configurable criteria.
type AwardTemplate struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    Category     `json:"category"`
	Criteria    CriteriaSpec `json:"criteria"`
	Tiers       []TierSpec   `json:"tiers"`
	Points      int64        `json:"points"`
	Active      bool         `json:"active"`
	Version     int          `json:"version"`
	CreatedBy   int64        `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ProgressSnapshot records the statistic values an award was granted or
// upgraded at.
type ProgressSnapshot struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// UserAward represents an award granted to a user. Unique per
// (user id, template id); tier moves forward in place, never duplicates.
type UserAward struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	TemplateID  int64            `json:"template_id"`
	Tier        int              `json:"tier"`
	Progress    ProgressSnapshot `json:"progress"`
	RelatedType string           `json:"related_type,omitempty"`
	RelatedID   string           `json:"related_id,omitempty"`
	GrantedAt   time.Time        `json:"granted_at"`
	UpgradedAt  time.Time        `json:"upgraded_at"`
}

// ContributionRecord represents a verified user contribution (for example
// an accepted data correction). Feeds contribution-based criteria.
type ContributionRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStats is the aggregate view the award engine evaluates against.
type UserStats struct {
	UserID                int64 `json:"user_id"`
	Discoveries           int   `json:"discoveries"`
	UniqueEffects         int   `json:"unique_effects"`
	Contributions         int   `json:"contributions"`
	AcceptedContributions int   `json:"accepted_contributions"`
	ConsecutiveDays       int   `json:"consecutive_days"`
}

// AwardAggregate is the per-user aggregate the leaderboard ranks by.
// TierPoints is the sum of template points weighted by tier across the
// user's awards in the requested category.
type AwardAggregate struct {
	UserID         int64     `json:"user_id"`
	TierPoints     int64     `json:"tier_points"`
	Awards         int       `json:"awards"`
	FirstGrantedAt time.Time `json:"first_granted_at"`
}

// Storage is the interface all storage backends must implement.
// Backends must enforce uniqueness atomically: among concurrent
// CreateDiscovery calls for the same effect exactly one wins.
type Storage interface {
	// Reaction outcomes
	PutOutcome(ctx context.Context, record *OutcomeRecord) error
	GetOutcome(ctx context.Context, cacheKey string) (*OutcomeRecord, error)
	ListOutcomesByUser(ctx context.Context, userID int64, limit int) ([]*OutcomeRecord, error)

	// Discovery ledger
	CreateDiscovery(ctx context.Context, record *DiscoveryRecord) error
	GetDiscovery(ctx context.Context, effect string) (*DiscoveryRecord, error)
	ListDiscoveries(ctx context.Context, limit, offset int) ([]*DiscoveryRecord, error)
	DeleteDiscovery(ctx context.Context, effect string) error

	// Award templates
	CreateTemplate(ctx context.Context, template *AwardTemplate) error
	UpdateTemplate(ctx context.Context, template *AwardTemplate) error
	GetTemplate(ctx context.Context, id int64) (*AwardTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (*AwardTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]*AwardTemplate, error)

	// User awards
	CreateUserAward(ctx context.Context, award *UserAward) error
	GetUserAward(ctx context.Context, userID, templateID int64) (*UserAward, error)
	UpdateUserAwardTier(ctx context.Context, userID, templateID int64, tier int, progress ProgressSnapshot, upgradedAt time.Time) error
	DeleteUserAward(ctx context.Context, userID, templateID int64) error
	ListUserAwards(ctx context.Context, userID int64) ([]*UserAward, error)
	AggregateAwards(ctx context.Context, category Category) ([]AwardAggregate, error)

	// Contributions
	CreateContribution(ctx context.Context, record *ContributionRecord) error

	// Aggregate statistics
	GetUserStats(ctx context.Context, userID int64) (*UserStats, error)

	// Ping checks the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage backend.
	Close() error
}
