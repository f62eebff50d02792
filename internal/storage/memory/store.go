// Package memory provides an in-memory storage implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
)

// Store implements the storage.Storage interface using in-memory data
// structures. Intended for tests and single-node development use.
type Store struct {
	mu sync.RWMutex

	// outcomes stores reaction outcomes by cache key
	outcomes map[string]*storage.OutcomeRecord

	// userOutcomes stores cache keys per first-resolver user, in insert order
	userOutcomes map[int64][]string

	// discoveries stores the discovery ledger by effect tag
	discoveries map[string]*storage.DiscoveryRecord

	// templates stores award templates by ID
	templates map[int64]*storage.AwardTemplate

	// templateNames maps lowercased template name to ID for uniqueness
	templateNames map[string]int64

	// awards stores user awards keyed by (user ID, template ID)
	awards map[awardKey]*storage.UserAward

	// contributions stores contribution records in insert order
	contributions []*storage.ContributionRecord

	nextOutcomeID      int64
	nextDiscoveryID    int64
	nextTemplateID     int64
	nextAwardID        int64
	nextContributionID int64
}

type awardKey struct {
	userID     int64
	templateID int64
}

func init() {
	storage.Register(func(storage.Settings) (storage.Storage, error) {
		return NewStore(), nil
	}, "memory")
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		outcomes:      make(map[string]*storage.OutcomeRecord),
		userOutcomes:  make(map[int64][]string),
		discoveries:   make(map[string]*storage.DiscoveryRecord),
		templates:     make(map[int64]*storage.AwardTemplate),
		templateNames: make(map[string]int64),
		awards:        make(map[awardKey]*storage.UserAward),
	}
}

// PutOutcome stores a new reaction outcome. The cache key is unique; a
// second write for the same key returns ErrOutcomeExists and leaves the
// original record untouched.
func (s *Store) PutOutcome(ctx context.Context, record *storage.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.outcomes[record.CacheKey]; exists {
		return storage.ErrOutcomeExists
	}

	s.nextOutcomeID++
	record.ID = s.nextOutcomeID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.outcomes[record.CacheKey] = cloneOutcome(record)
	s.userOutcomes[record.UserID] = append(s.userOutcomes[record.UserID], record.CacheKey)
	return nil
}

// GetOutcome retrieves a reaction outcome by cache key.
func (s *Store) GetOutcome(ctx context.Context, cacheKey string) (*storage.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.outcomes[cacheKey]
	if !exists {
		return nil, storage.ErrOutcomeNotFound
	}
	return cloneOutcome(record), nil
}

// ListOutcomesByUser returns outcomes first resolved by the given user,
// newest first.
func (s *Store) ListOutcomesByUser(ctx context.Context, userID int64, limit int) ([]*storage.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.userOutcomes[userID]
	records := make([]*storage.OutcomeRecord, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if limit > 0 && len(records) >= limit {
			break
		}
		if record, ok := s.outcomes[keys[i]]; ok {
			records = append(records, cloneOutcome(record))
		}
	}
	return records, nil
}

// CreateDiscovery inserts a discovery record. Exactly one caller wins for a
// given effect; later callers get ErrDiscoveryExists.
func (s *Store) CreateDiscovery(ctx context.Context, record *storage.DiscoveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.discoveries[record.Effect]; exists {
		return storage.ErrDiscoveryExists
	}

	s.nextDiscoveryID++
	record.ID = s.nextDiscoveryID
	if record.DiscoveredAt.IsZero() {
		record.DiscoveredAt = time.Now().UTC()
	}

	stored := *record
	s.discoveries[record.Effect] = &stored
	return nil
}

// GetDiscovery retrieves a discovery record by effect tag.
func (s *Store) GetDiscovery(ctx context.Context, effect string) (*storage.DiscoveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.discoveries[effect]
	if !exists {
		return nil, storage.ErrDiscoveryNotFound
	}
	copied := *record
	return &copied, nil
}

// ListDiscoveries returns discovery records, newest first.
func (s *Store) ListDiscoveries(ctx context.Context, limit, offset int) ([]*storage.DiscoveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*storage.DiscoveryRecord, 0, len(s.discoveries))
	for _, record := range s.discoveries {
		copied := *record
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].DiscoveredAt.Equal(all[j].DiscoveredAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].DiscoveredAt.After(all[j].DiscoveredAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// DeleteDiscovery removes a discovery record (administrative revocation).
func (s *Store) DeleteDiscovery(ctx context.Context, effect string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.discoveries[effect]; !exists {
		return storage.ErrDiscoveryNotFound
	}
	delete(s.discoveries, effect)
	return nil
}

// CreateTemplate stores a new award template. Names are unique.
func (s *Store) CreateTemplate(ctx context.Context, template *storage.AwardTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templateNames[strings.ToLower(template.Name)]; exists {
		return storage.ErrTemplateExists
	}

	s.nextTemplateID++
	template.ID = s.nextTemplateID
	template.Version = 1
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}
	template.UpdatedAt = template.CreatedAt

	s.templates[template.ID] = cloneTemplate(template)
	s.templateNames[strings.ToLower(template.Name)] = template.ID
	return nil
}

// UpdateTemplate updates an existing template in place and bumps its
// version. Already-granted awards are not touched.
func (s *Store) UpdateTemplate(ctx context.Context, template *storage.AwardTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[template.ID]
	if !exists {
		return storage.ErrTemplateNotFound
	}
	if !strings.EqualFold(existing.Name, template.Name) {
		if _, taken := s.templateNames[strings.ToLower(template.Name)]; taken {
			return storage.ErrTemplateExists
		}
		delete(s.templateNames, strings.ToLower(existing.Name))
		s.templateNames[strings.ToLower(template.Name)] = template.ID
	}

	template.Version = existing.Version + 1
	template.CreatedAt = existing.CreatedAt
	template.CreatedBy = existing.CreatedBy
	template.UpdatedAt = time.Now().UTC()
	s.templates[template.ID] = cloneTemplate(template)
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*storage.AwardTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	template, exists := s.templates[id]
	if !exists {
		return nil, storage.ErrTemplateNotFound
	}
	return cloneTemplate(template), nil
}

// GetTemplateByName retrieves a template by its unique name.
func (s *Store) GetTemplateByName(ctx context.Context, name string) (*storage.AwardTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.templateNames[strings.ToLower(name)]
	if !exists {
		return nil, storage.ErrTemplateNotFound
	}
	return cloneTemplate(s.templates[id]), nil
}

// ListTemplates returns templates ordered by ID.
func (s *Store) ListTemplates(ctx context.Context, activeOnly bool) ([]*storage.AwardTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*storage.AwardTemplate, 0, len(s.templates))
	for _, template := range s.templates {
		if activeOnly && !template.Active {
			continue
		}
		templates = append(templates, cloneTemplate(template))
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// CreateUserAward stores a new user award. Unique per (user, template).
func (s *Store) CreateUserAward(ctx context.Context, award *storage.UserAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey{userID: award.UserID, templateID: award.TemplateID}
	if _, exists := s.awards[key]; exists {
		return storage.ErrAwardExists
	}

	s.nextAwardID++
	award.ID = s.nextAwardID
	if award.GrantedAt.IsZero() {
		award.GrantedAt = time.Now().UTC()
	}
	if award.UpgradedAt.IsZero() {
		award.UpgradedAt = award.GrantedAt
	}

	stored := *award
	s.awards[key] = &stored
	return nil
}

// GetUserAward retrieves a user's award for a template.
func (s *Store) GetUserAward(ctx context.Context, userID, templateID int64) (*storage.UserAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	award, exists := s.awards[awardKey{userID: userID, templateID: templateID}]
	if !exists {
		return nil, storage.ErrAwardNotFound
	}
	copied := *award
	return &copied, nil
}

// UpdateUserAwardTier replaces an award's tier and progress snapshot.
func (s *Store) UpdateUserAwardTier(ctx context.Context, userID, templateID int64, tier int, progress storage.ProgressSnapshot, upgradedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	award, exists := s.awards[awardKey{userID: userID, templateID: templateID}]
	if !exists {
		return storage.ErrAwardNotFound
	}
	award.Tier = tier
	award.Progress = progress
	award.UpgradedAt = upgradedAt
	return nil
}

// DeleteUserAward removes an award (administrative revocation).
func (s *Store) DeleteUserAward(ctx context.Context, userID, templateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey{userID: userID, templateID: templateID}
	if _, exists := s.awards[key]; !exists {
		return storage.ErrAwardNotFound
	}
	delete(s.awards, key)
	return nil
}

// ListUserAwards returns a user's awards, most recently granted first.
func (s *Store) ListUserAwards(ctx context.Context, userID int64) ([]*storage.UserAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	awards := make([]*storage.UserAward, 0)
	for key, award := range s.awards {
		if key.userID != userID {
			continue
		}
		copied := *award
		awards = append(awards, &copied)
	}
	sort.Slice(awards, func(i, j int) bool {
		if awards[i].GrantedAt.Equal(awards[j].GrantedAt) {
			return awards[i].ID > awards[j].ID
		}
		return awards[i].GrantedAt.After(awards[j].GrantedAt)
	})
	return awards, nil
}

// AggregateAwards computes per-user award aggregates for the leaderboard.
// An empty category aggregates across all categories.
func (s *Store) AggregateAwards(ctx context.Context, category storage.Category) ([]storage.AwardAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[int64]*storage.AwardAggregate)
	for _, award := range s.awards {
		template, ok := s.templates[award.TemplateID]
		if !ok {
			continue
		}
		if category != "" && template.Category != category {
			continue
		}

		agg, ok := byUser[award.UserID]
		if !ok {
			agg = &storage.AwardAggregate{UserID: award.UserID, FirstGrantedAt: award.GrantedAt}
			byUser[award.UserID] = agg
		}
		agg.TierPoints += template.Points * int64(award.Tier)
		agg.Awards++
		if award.GrantedAt.Before(agg.FirstGrantedAt) {
			agg.FirstGrantedAt = award.GrantedAt
		}
	}

	aggregates := make([]storage.AwardAggregate, 0, len(byUser))
	for _, agg := range byUser {
		aggregates = append(aggregates, *agg)
	}
	sort.Slice(aggregates, func(i, j int) bool { return aggregates[i].UserID < aggregates[j].UserID })
	return aggregates, nil
}

// CreateContribution records a verified contribution.
func (s *Store) CreateContribution(ctx context.Context, record *storage.ContributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContributionID++
	record.ID = s.nextContributionID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	stored := *record
	s.contributions = append(s.contributions, &stored)
	return nil
}

// GetUserStats computes the aggregate statistics the award engine
// evaluates against.
func (s *Store) GetUserStats(ctx context.Context, userID int64) (*storage.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.UserStats{UserID: userID}

	effects := make(map[string]struct{})
	for _, record := range s.discoveries {
		if record.UserID != userID {
			continue
		}
		stats.Discoveries++
		effects[record.Effect] = struct{}{}
	}
	stats.UniqueEffects = len(effects)

	for _, record := range s.contributions {
		if record.UserID != userID {
			continue
		}
		stats.Contributions++
		if record.Accepted {
			stats.AcceptedContributions++
		}
	}

	var activity []time.Time
	for _, key := range s.userOutcomes[userID] {
		if record, ok := s.outcomes[key]; ok {
			activity = append(activity, record.CreatedAt)
		}
	}
	stats.ConsecutiveDays = storage.ConsecutiveDays(activity, time.Now().UTC())

	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneOutcome(record *storage.OutcomeRecord) *storage.OutcomeRecord {
	copied := *record
	copied.Reactants = append([]string(nil), record.Reactants...)
	copied.Products = append([]storage.Product(nil), record.Products...)
	copied.Effects = append([]string(nil), record.Effects...)
	return &copied
}

func cloneTemplate(template *storage.AwardTemplate) *storage.AwardTemplate {
	copied := *template
	copied.Tiers = append([]storage.TierSpec(nil), template.Tiers...)
	return &copied
}
