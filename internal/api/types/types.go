// Package types provides API request and response types.
package types

import "github.com/awebisam/chemezy/internal/storage"

// ReactionRequest is the request body for resolving a reaction.
type ReactionRequest struct {
	Reactants   []string `json:"reactants"`
	Environment string   `json:"environment,omitempty"`
	CatalystID  string   `json:"catalyst_id,omitempty"`
}

// ReactionResponse is the resolved reaction outcome. IsWorldFirst is
// computed per request and never stored.
type ReactionResponse struct {
	RequestID    string            `json:"request_id"`
	Products     []storage.Product `json:"products"`
	Effects      []string          `json:"effects"`
	StateChange  string            `json:"state_change,omitempty"`
	Explanation  string            `json:"explanation"`
	IsWorldFirst bool              `json:"is_world_first"`
	NewEffects   []string          `json:"new_effects,omitempty"`
}

// DiscoveryResponse is a single world-first record.
type DiscoveryResponse struct {
	Effect       string `json:"effect"`
	UserID       int64  `json:"user_id"`
	DiscoveredAt string `json:"discovered_at"`
}

// DiscoveriesListResponse is the response for listing discoveries.
type DiscoveriesListResponse struct {
	Discoveries []DiscoveryResponse `json:"discoveries"`
}

// AwardResponse is a granted award joined with its template.
type AwardResponse struct {
	TemplateID   int64            `json:"template_id"`
	TemplateName string           `json:"template_name"`
	Category     storage.Category `json:"category"`
	Description  string           `json:"description"`
	Tier         int              `json:"tier"`
	TierName     string           `json:"tier_name,omitempty"`
	Points       int64            `json:"points"`
	GrantedAt    string           `json:"granted_at"`
	UpgradedAt   string           `json:"upgraded_at"`
}

// AwardsListResponse is the response for listing a user's awards.
type AwardsListResponse struct {
	UserID int64           `json:"user_id"`
	Awards []AwardResponse `json:"awards"`
}

// ProgressResponse is the progress report toward one template.
type ProgressResponse struct {
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

// ProgressListResponse is the response for the available-awards view.
type ProgressListResponse struct {
	Progress []ProgressResponse `json:"progress"`
}

// LeaderboardEntryResponse is one ranking row.
type LeaderboardEntryResponse struct {
	Rank   int   `json:"rank"`
	UserID int64 `json:"user_id"`
	Score  int64 `json:"score"`
	Awards int   `json:"awards"`
}

// LeaderboardResponse is the response for a ranking page.
type LeaderboardResponse struct {
	Category string                     `json:"category"`
	Entries  []LeaderboardEntryResponse `json:"entries"`
}

// TemplateRequest is the request body for creating or updating an
// award template.
type TemplateRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    storage.Category     `json:"category"`
	Criteria    storage.CriteriaSpec `json:"criteria"`
	Tiers       []storage.TierSpec   `json:"tiers"`
	Points      int64                `json:"points"`
	Active      *bool                `json:"active,omitempty"`
}

// TemplateResponse is the response for template operations.
type TemplateResponse struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    storage.Category     `json:"category"`
	Criteria    storage.CriteriaSpec `json:"criteria"`
	Tiers       []storage.TierSpec   `json:"tiers"`
	Points      int64                `json:"points"`
	Active      bool                 `json:"active"`
	Version     int                  `json:"version"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

// TemplatesListResponse is the response for listing templates.
type TemplatesListResponse struct {
	Templates []TemplateResponse `json:"templates"`
}

// GrantAwardRequest is the admin request for granting an award.
type GrantAwardRequest struct {
	UserID     int64 `json:"user_id"`
	TemplateID int64 `json:"template_id"`
	Tier       int   `json:"tier"`
}

// RevokeAwardRequest is the admin request for revoking an award.
type RevokeAwardRequest struct {
	UserID     int64  `json:"user_id"`
	TemplateID int64  `json:"template_id"`
	Reason     string `json:"reason"`
}

// SetTierRequest is the admin request for setting an award tier.
type SetTierRequest struct {
	UserID     int64 `json:"user_id"`
	TemplateID int64 `json:"template_id"`
	Tier       int   `json:"tier"`
}

// RevokeDiscoveryRequest is the admin request for revoking a discovery.
type RevokeDiscoveryRequest struct {
	Effect string `json:"effect"`
	Reason string `json:"reason"`
}

// ContributionRequest is the admin request for recording a verified
// contribution.
type ContributionRequest struct {
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// HealthResponse is the response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// Error codes. The first three digits mirror the HTTP status.
const (
	ErrorCodeUnauthorized = 40101

	ErrorCodeForbidden = 40301

	ErrorCodeDiscoveryNotFound = 40401
	ErrorCodeTemplateNotFound  = 40402
	ErrorCodeAwardNotFound     = 40403
	ErrorCodeUserNotRanked     = 40404

	ErrorCodeTemplateExists  = 40901
	ErrorCodeAwardExists     = 40902
	ErrorCodeDiscoveryExists = 40903

	ErrorCodeInvalidRequest  = 42201
	ErrorCodeInvalidCategory = 42202
	ErrorCodeInvalidTier     = 42203
	ErrorCodeNoReactants     = 42204

	ErrorCodeInternalServerError = 50001
	ErrorCodeStorageError        = 50002

	// Retryable: the synthesis or fact upstream failed; nothing was
	// cached and the same request can be retried.
	ErrorCodeUpstreamUnavailable = 50301
)
