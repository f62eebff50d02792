// Package postgres provides a PostgreSQL storage implementation.
package postgres

// migrations contains the database schema migrations.
var migrations = []string{
	// Migration 1: Reaction outcome cache
	`CREATE TABLE IF NOT EXISTS reaction_outcomes (
		id BIGSERIAL PRIMARY KEY,
		cache_key VARCHAR(64) NOT NULL UNIQUE,
		reactants JSONB NOT NULL,
		environment VARCHAR(50) NOT NULL,
		catalyst VARCHAR(255),
		products JSONB NOT NULL,
		effects JSONB NOT NULL,
		state_change VARCHAR(255),
		explanation TEXT NOT NULL,
		user_id BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_reaction_outcomes_user_id ON reaction_outcomes(user_id)`,

	// Migration 2: World-first discovery ledger. The unique constraint on
	// effect is what arbitrates concurrent first-discovery claims.
	`CREATE TABLE IF NOT EXISTS discoveries (
		id BIGSERIAL PRIMARY KEY,
		effect VARCHAR(255) NOT NULL UNIQUE,
		user_id BIGINT NOT NULL,
		cache_key VARCHAR(64) NOT NULL,
		discovered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_discoveries_user_id ON discoveries(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_discoveries_discovered_at ON discoveries(discovered_at DESC)`,

	// Migration 3: Award templates
	`CREATE TABLE IF NOT EXISTS award_templates (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category VARCHAR(50) NOT NULL,
		criteria JSONB NOT NULL,
		tiers JSONB NOT NULL,
		points BIGINT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL DEFAULT 1,
		created_by BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_award_templates_name ON award_templates(LOWER(name))`,
	`CREATE INDEX IF NOT EXISTS idx_award_templates_category ON award_templates(category)`,
	`CREATE INDEX IF NOT EXISTS idx_award_templates_active ON award_templates(active)`,

	// Migration 4: User awards. One row per (user, template); tier upgrades
	// update the row in place.
	`CREATE TABLE IF NOT EXISTS user_awards (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		template_id BIGINT NOT NULL REFERENCES award_templates(id),
		tier INTEGER NOT NULL DEFAULT 1,
		progress JSONB NOT NULL,
		related_type VARCHAR(50),
		related_id VARCHAR(255),
		granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		upgraded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, template_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_awards_user_id ON user_awards(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_awards_template_id ON user_awards(template_id)`,

	// Migration 5: Contribution records for the correction-accuracy and
	// debug-submission criteria.
	`CREATE TABLE IF NOT EXISTS contributions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		kind VARCHAR(50) NOT NULL,
		accepted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_contributions_user_id ON contributions(user_id)`,
}
