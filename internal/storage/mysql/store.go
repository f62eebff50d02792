package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/awebisam/chemezy/internal/storage"
)

// Config holds MySQL connection configuration.
type Config struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	TLS             string        `json:"tls" yaml:"tls"` // true, false, skip-verify, preferred, or custom config name
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            3306,
		Database:        "chemezy",
		Username:        "root",
		Password:        "",
		TLS:             "false",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func init() {
	storage.Register(func(s storage.Settings) (storage.Storage, error) {
		cfg := DefaultConfig()
		if s.Host != "" {
			cfg.Host = s.Host
		}
		if s.Port != 0 {
			cfg.Port = s.Port
		}
		if s.Database != "" {
			cfg.Database = s.Database
		}
		if s.Username != "" {
			cfg.Username = s.Username
		}
		cfg.Password = s.Password
		if s.TLS != "" {
			cfg.TLS = s.TLS
		}
		if s.MaxOpenConns != 0 {
			cfg.MaxOpenConns = s.MaxOpenConns
		}
		if s.MaxIdleConns != 0 {
			cfg.MaxIdleConns = s.MaxIdleConns
		}
		if s.ConnMaxLifetime != 0 {
			cfg.ConnMaxLifetime = s.ConnMaxLifetime
		}
		return NewStore(cfg)
	}, "mysql")
}

// DSN returns the connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.TLS,
	)
}

// Store implements the storage.Storage interface using MySQL.
type Store struct {
	db     *sql.DB
	config Config

	// Prepared statements for the hot paths
	stmts *preparedStatements
}

// preparedStatements holds all prepared SQL statements.
type preparedStatements struct {
	// Outcome statements
	getOutcome         *sql.Stmt
	putOutcome         *sql.Stmt
	listOutcomesByUser *sql.Stmt

	// Discovery statements
	createDiscovery *sql.Stmt
	getDiscovery    *sql.Stmt
	deleteDiscovery *sql.Stmt

	// Award statements
	getUserAward    *sql.Stmt
	updateAwardTier *sql.Stmt
	deleteUserAward *sql.Stmt
	listUserAwards  *sql.Stmt
}

// NewStore creates a new MySQL store.
func NewStore(config Config) (*Store, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:     db,
		config: config,
	}

	// Run migrations
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Prepare statements
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// prepareStatements prepares the hot-path SQL statements.
func (s *Store) prepareStatements() error {
	var err error
	stmts := &preparedStatements{}

	stmts.getOutcome, err = s.db.Prepare(
		`SELECT id, cache_key, reactants, environment, catalyst, products, effects, state_change, explanation, user_id, created_at
		 FROM reaction_outcomes WHERE cache_key = ?`)
	if err != nil {
		return fmt.Errorf("prepare getOutcome: %w", err)
	}

	stmts.putOutcome, err = s.db.Prepare(
		`INSERT INTO reaction_outcomes (cache_key, reactants, environment, catalyst, products, effects, state_change, explanation, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare putOutcome: %w", err)
	}

	stmts.listOutcomesByUser, err = s.db.Prepare(
		`SELECT id, cache_key, reactants, environment, catalyst, products, effects, state_change, explanation, user_id, created_at
		 FROM reaction_outcomes WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("prepare listOutcomesByUser: %w", err)
	}

	stmts.createDiscovery, err = s.db.Prepare(
		`INSERT INTO discoveries (effect, user_id, cache_key, discovered_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare createDiscovery: %w", err)
	}

	stmts.getDiscovery, err = s.db.Prepare(
		`SELECT id, effect, user_id, cache_key, discovered_at FROM discoveries WHERE effect = ?`)
	if err != nil {
		return fmt.Errorf("prepare getDiscovery: %w", err)
	}

	stmts.deleteDiscovery, err = s.db.Prepare(
		`DELETE FROM discoveries WHERE effect = ?`)
	if err != nil {
		return fmt.Errorf("prepare deleteDiscovery: %w", err)
	}

	stmts.getUserAward, err = s.db.Prepare(
		`SELECT id, user_id, template_id, tier, progress, related_type, related_id, granted_at, upgraded_at
		 FROM user_awards WHERE user_id = ? AND template_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare getUserAward: %w", err)
	}

	stmts.updateAwardTier, err = s.db.Prepare(
		`UPDATE user_awards SET tier = ?, progress = ?, upgraded_at = ?
		 WHERE user_id = ? AND template_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare updateAwardTier: %w", err)
	}

	stmts.deleteUserAward, err = s.db.Prepare(
		`DELETE FROM user_awards WHERE user_id = ? AND template_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare deleteUserAward: %w", err)
	}

	stmts.listUserAwards, err = s.db.Prepare(
		`SELECT id, user_id, template_id, tier, progress, related_type, related_id, granted_at, upgraded_at
		 FROM user_awards WHERE user_id = ?
		 ORDER BY granted_at DESC, id DESC`)
	if err != nil {
		return fmt.Errorf("prepare listUserAwards: %w", err)
	}

	s.stmts = stmts
	return nil
}

// closeStatements closes all prepared statements.
func (s *Store) closeStatements() {
	if s.stmts == nil {
		return
	}

	stmts := []*sql.Stmt{
		s.stmts.getOutcome, s.stmts.putOutcome, s.stmts.listOutcomesByUser,
		s.stmts.createDiscovery, s.stmts.getDiscovery, s.stmts.deleteDiscovery,
		s.stmts.getUserAward, s.stmts.updateAwardTier, s.stmts.deleteUserAward,
		s.stmts.listUserAwards,
	}

	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// PutOutcome stores a new reaction outcome. The unique key on cache_key
// arbitrates concurrent writers; losers get ErrOutcomeExists.
func (s *Store) PutOutcome(ctx context.Context, record *storage.OutcomeRecord) error {
	reactantsJSON, err := json.Marshal(record.Reactants)
	if err != nil {
		return fmt.Errorf("failed to marshal reactants: %w", err)
	}
	productsJSON, err := json.Marshal(record.Products)
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}
	effectsJSON, err := json.Marshal(record.Effects)
	if err != nil {
		return fmt.Errorf("failed to marshal effects: %w", err)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := s.stmts.putOutcome.ExecContext(ctx,
		record.CacheKey, reactantsJSON, record.Environment, nullString(record.Catalyst),
		productsJSON, effectsJSON, nullString(record.StateChange), record.Explanation,
		record.UserID, record.CreatedAt,
	)
	if err != nil {
		if isMySQLDuplicateError(err) {
			return storage.ErrOutcomeExists
		}
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	record.ID, _ = result.LastInsertId()
	return nil
}

// GetOutcome retrieves a reaction outcome by cache key.
func (s *Store) GetOutcome(ctx context.Context, cacheKey string) (*storage.OutcomeRecord, error) {
	record, err := scanOutcome(s.stmts.getOutcome.QueryRowContext(ctx, cacheKey))
	if err == sql.ErrNoRows {
		return nil, storage.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return record, nil
}

// ListOutcomesByUser returns outcomes first resolved by the given user,
// newest first.
func (s *Store) ListOutcomesByUser(ctx context.Context, userID int64, limit int) ([]*storage.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.stmts.listOutcomesByUser.QueryContext(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var records []*storage.OutcomeRecord
	for rows.Next() {
		record, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CreateDiscovery inserts a discovery record. The unique key on effect
// decides the winner among concurrent callers; everyone else gets
// ErrDiscoveryExists.
func (s *Store) CreateDiscovery(ctx context.Context, record *storage.DiscoveryRecord) error {
	if record.DiscoveredAt.IsZero() {
		record.DiscoveredAt = time.Now().UTC()
	}

	result, err := s.stmts.createDiscovery.ExecContext(ctx,
		record.Effect, record.UserID, record.CacheKey, record.DiscoveredAt)
	if err != nil {
		if isMySQLDuplicateError(err) {
			return storage.ErrDiscoveryExists
		}
		return fmt.Errorf("failed to insert discovery: %w", err)
	}
	record.ID, _ = result.LastInsertId()
	return nil
}

// GetDiscovery retrieves a discovery record by effect tag.
func (s *Store) GetDiscovery(ctx context.Context, effect string) (*storage.DiscoveryRecord, error) {
	record := &storage.DiscoveryRecord{}
	err := s.stmts.getDiscovery.QueryRowContext(ctx, effect).Scan(
		&record.ID, &record.Effect, &record.UserID, &record.CacheKey, &record.DiscoveredAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrDiscoveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discovery: %w", err)
	}
	return record, nil
}

// ListDiscoveries returns discovery records, newest first.
func (s *Store) ListDiscoveries(ctx context.Context, limit, offset int) ([]*storage.DiscoveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, effect, user_id, cache_key, discovered_at FROM discoveries
		 ORDER BY discovered_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list discoveries: %w", err)
	}
	defer rows.Close()

	var records []*storage.DiscoveryRecord
	for rows.Next() {
		record := &storage.DiscoveryRecord{}
		if err := rows.Scan(&record.ID, &record.Effect, &record.UserID, &record.CacheKey, &record.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteDiscovery removes a discovery record (administrative revocation).
func (s *Store) DeleteDiscovery(ctx context.Context, effect string) error {
	result, err := s.stmts.deleteDiscovery.ExecContext(ctx, effect)
	if err != nil {
		return fmt.Errorf("failed to delete discovery: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return storage.ErrDiscoveryNotFound
	}
	return nil
}

// CreateTemplate stores a new award template. The unique key on name is
// case-insensitive via the table collation.
func (s *Store) CreateTemplate(ctx context.Context, template *storage.AwardTemplate) error {
	criteriaJSON, err := json.Marshal(template.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	tiersJSON, err := json.Marshal(template.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tiers: %w", err)
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}
	template.UpdatedAt = template.CreatedAt
	template.Version = 1

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO award_templates (name, description, category, criteria, tiers, points, active, version, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		template.Name, template.Description, string(template.Category), criteriaJSON, tiersJSON,
		template.Points, template.Active, template.Version, template.CreatedBy,
		template.CreatedAt, template.UpdatedAt,
	)
	if err != nil {
		if isMySQLDuplicateError(err) {
			return storage.ErrTemplateExists
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}
	template.ID, _ = result.LastInsertId()
	return nil
}

// UpdateTemplate updates an existing template and bumps its version.
// Already-granted awards are not touched.
func (s *Store) UpdateTemplate(ctx context.Context, template *storage.AwardTemplate) error {
	criteriaJSON, err := json.Marshal(template.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	tiersJSON, err := json.Marshal(template.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tiers: %w", err)
	}

	template.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE award_templates
		 SET name = ?, description = ?, category = ?, criteria = ?, tiers = ?,
		     points = ?, active = ?, version = version + 1, updated_at = ?
		 WHERE id = ?`,
		template.Name, template.Description, string(template.Category), criteriaJSON, tiersJSON,
		template.Points, template.Active, template.UpdatedAt, template.ID,
	)
	if err != nil {
		if isMySQLDuplicateError(err) {
			return storage.ErrTemplateExists
		}
		return fmt.Errorf("failed to update template: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// A no-change update also reports zero rows; distinguish missing rows
		if _, err := s.GetTemplate(ctx, template.ID); err != nil {
			return err
		}
	}

	// Re-read version/creation metadata the UPDATE left server-side
	updated, err := s.GetTemplate(ctx, template.ID)
	if err != nil {
		return err
	}
	template.Version = updated.Version
	template.CreatedBy = updated.CreatedBy
	template.CreatedAt = updated.CreatedAt
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*storage.AwardTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, category, criteria, tiers, points, active, version, created_by, created_at, updated_at
		 FROM award_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// GetTemplateByName retrieves a template by its unique name.
func (s *Store) GetTemplateByName(ctx context.Context, name string) (*storage.AwardTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, category, criteria, tiers, points, active, version, created_by, created_at, updated_at
		 FROM award_templates WHERE name = ?`, name)
	return scanTemplate(row)
}

// ListTemplates returns templates ordered by ID.
func (s *Store) ListTemplates(ctx context.Context, activeOnly bool) ([]*storage.AwardTemplate, error) {
	query := `SELECT id, name, description, category, criteria, tiers, points, active, version, created_by, created_at, updated_at
	 FROM award_templates`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*storage.AwardTemplate
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, rows.Err()
}

// CreateUserAward stores a new user award. The unique key on
// (user_id, template_id) prevents duplicate grants.
func (s *Store) CreateUserAward(ctx context.Context, award *storage.UserAward) error {
	progressJSON, err := json.Marshal(award.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if award.GrantedAt.IsZero() {
		award.GrantedAt = time.Now().UTC()
	}
	if award.UpgradedAt.IsZero() {
		award.UpgradedAt = award.GrantedAt
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_awards (user_id, template_id, tier, progress, related_type, related_id, granted_at, upgraded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		award.UserID, award.TemplateID, award.Tier, progressJSON,
		nullString(award.RelatedType), nullString(award.RelatedID),
		award.GrantedAt, award.UpgradedAt,
	)
	if err != nil {
		if isMySQLDuplicateError(err) {
			return storage.ErrAwardExists
		}
		return fmt.Errorf("failed to insert user award: %w", err)
	}
	award.ID, _ = result.LastInsertId()
	return nil
}

// GetUserAward retrieves a user's award for a template.
func (s *Store) GetUserAward(ctx context.Context, userID, templateID int64) (*storage.UserAward, error) {
	award, err := scanAward(s.stmts.getUserAward.QueryRowContext(ctx, userID, templateID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrAwardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user award: %w", err)
	}
	return award, nil
}

// UpdateUserAwardTier replaces an award's tier and progress snapshot.
func (s *Store) UpdateUserAwardTier(ctx context.Context, userID, templateID int64, tier int, progress storage.ProgressSnapshot, upgradedAt time.Time) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	result, err := s.stmts.updateAwardTier.ExecContext(ctx, tier, progressJSON, upgradedAt, userID, templateID)
	if err != nil {
		return fmt.Errorf("failed to update award tier: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		if _, err := s.GetUserAward(ctx, userID, templateID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUserAward removes an award (administrative revocation).
func (s *Store) DeleteUserAward(ctx context.Context, userID, templateID int64) error {
	result, err := s.stmts.deleteUserAward.ExecContext(ctx, userID, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete user award: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return storage.ErrAwardNotFound
	}
	return nil
}

// ListUserAwards returns a user's awards, most recently granted first.
func (s *Store) ListUserAwards(ctx context.Context, userID int64) ([]*storage.UserAward, error) {
	rows, err := s.stmts.listUserAwards.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user awards: %w", err)
	}
	defer rows.Close()

	var awards []*storage.UserAward
	for rows.Next() {
		award, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user award: %w", err)
		}
		awards = append(awards, award)
	}
	return awards, rows.Err()
}

// AggregateAwards computes per-user award aggregates for the leaderboard.
// An empty category aggregates across all categories.
func (s *Store) AggregateAwards(ctx context.Context, category storage.Category) ([]storage.AwardAggregate, error) {
	query := `SELECT ua.user_id,
	        COALESCE(SUM(at.points * ua.tier), 0),
	        COUNT(*),
	        MIN(ua.granted_at)
	 FROM user_awards ua
	 JOIN award_templates at ON at.id = ua.template_id`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE at.category = ?`
		args = append(args, string(category))
	}
	query += ` GROUP BY ua.user_id ORDER BY ua.user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate awards: %w", err)
	}
	defer rows.Close()

	var aggregates []storage.AwardAggregate
	for rows.Next() {
		var agg storage.AwardAggregate
		if err := rows.Scan(&agg.UserID, &agg.TierPoints, &agg.Awards, &agg.FirstGrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

// CreateContribution records a verified contribution.
func (s *Store) CreateContribution(ctx context.Context, record *storage.ContributionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO contributions (user_id, kind, accepted, created_at) VALUES (?, ?, ?, ?)`,
		record.UserID, record.Kind, record.Accepted, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contribution: %w", err)
	}
	record.ID, _ = result.LastInsertId()
	return nil
}

// GetUserStats computes the aggregate statistics the award engine
// evaluates against.
func (s *Store) GetUserStats(ctx context.Context, userID int64) (*storage.UserStats, error) {
	stats := &storage.UserStats{UserID: userID}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT effect) FROM discoveries WHERE user_id = ?`,
		userID,
	).Scan(&stats.Discoveries, &stats.UniqueEffects)
	if err != nil {
		return nil, fmt.Errorf("failed to count discoveries: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(accepted), 0) FROM contributions WHERE user_id = ?`,
		userID,
	).Scan(&stats.Contributions, &stats.AcceptedContributions)
	if err != nil {
		return nil, fmt.Errorf("failed to count contributions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at FROM reaction_outcomes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}
	defer rows.Close()

	var activity []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activity = append(activity, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.ConsecutiveDays = storage.ConsecutiveDays(activity, time.Now().UTC())

	return stats, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes all prepared statements and the database connection.
func (s *Store) Close() error {
	s.closeStatements()
	return s.db.Close()
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(row rowScanner) (*storage.OutcomeRecord, error) {
	record := &storage.OutcomeRecord{}
	var reactantsJSON, productsJSON, effectsJSON []byte
	var catalyst, stateChange sql.NullString

	err := row.Scan(&record.ID, &record.CacheKey, &reactantsJSON, &record.Environment,
		&catalyst, &productsJSON, &effectsJSON, &stateChange, &record.Explanation,
		&record.UserID, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	record.Catalyst = catalyst.String
	record.StateChange = stateChange.String

	if err := json.Unmarshal(reactantsJSON, &record.Reactants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reactants: %w", err)
	}
	if err := json.Unmarshal(productsJSON, &record.Products); err != nil {
		return nil, fmt.Errorf("failed to unmarshal products: %w", err)
	}
	if err := json.Unmarshal(effectsJSON, &record.Effects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal effects: %w", err)
	}
	return record, nil
}

func scanTemplate(row rowScanner) (*storage.AwardTemplate, error) {
	template := &storage.AwardTemplate{}
	var category string
	var criteriaJSON, tiersJSON []byte

	err := row.Scan(&template.ID, &template.Name, &template.Description, &category,
		&criteriaJSON, &tiersJSON, &template.Points, &template.Active, &template.Version,
		&template.CreatedBy, &template.CreatedAt, &template.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	template.Category = storage.Category(category)
	if err := json.Unmarshal(criteriaJSON, &template.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal(tiersJSON, &template.Tiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiers: %w", err)
	}
	return template, nil
}

func scanAward(row rowScanner) (*storage.UserAward, error) {
	award := &storage.UserAward{}
	var progressJSON []byte
	var relatedType, relatedID sql.NullString

	err := row.Scan(&award.ID, &award.UserID, &award.TemplateID, &award.Tier,
		&progressJSON, &relatedType, &relatedID, &award.GrantedAt, &award.UpgradedAt)
	if err != nil {
		return nil, err
	}

	award.RelatedType = relatedType.String
	award.RelatedID = relatedID.String
	if err := json.Unmarshal(progressJSON, &award.Progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return award, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isMySQLDuplicateError checks if the error is a MySQL duplicate entry
// error (error code 1062).
func isMySQLDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "Duplicate entry") || contains(errStr, "1062")
}

// contains checks if s contains substr.
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr, 0))
}

func containsAt(s, substr string, start int) bool {
	for i := start; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Ensure Store implements storage.Storage
var _ storage.Storage = (*Store)(nil)

// MarshalJSON implements json.Marshaler for Config.
func (c Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		Password string `json:"password,omitempty"`
		*Alias
	}{
		Password: "***",
		Alias:    (*Alias)(&c),
	})
}
