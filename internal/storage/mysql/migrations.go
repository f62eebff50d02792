// Package mysql provides a MySQL storage implementation.
package mysql

// migrations contains the database schema migrations.
var migrations = []string{
	// Migration 1: Reaction outcome cache
	"CREATE TABLE IF NOT EXISTS reaction_outcomes (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY," +
		"cache_key VARCHAR(64) NOT NULL," +
		"reactants JSON NOT NULL," +
		"environment VARCHAR(50) NOT NULL," +
		"catalyst VARCHAR(255)," +
		"products JSON NOT NULL," +
		"effects JSON NOT NULL," +
		"state_change VARCHAR(255)," +
		"explanation TEXT NOT NULL," +
		"user_id BIGINT NOT NULL," +
		"created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"UNIQUE KEY idx_outcomes_cache_key (cache_key)," +
		"INDEX idx_outcomes_user_id (user_id)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",

	// Migration 2: World-first discovery ledger. The unique key on effect
	// arbitrates concurrent first-discovery claims.
	"CREATE TABLE IF NOT EXISTS discoveries (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY," +
		"effect VARCHAR(255) NOT NULL," +
		"user_id BIGINT NOT NULL," +
		"cache_key VARCHAR(64) NOT NULL," +
		"discovered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"UNIQUE KEY idx_discoveries_effect (effect)," +
		"INDEX idx_discoveries_user_id (user_id)," +
		"INDEX idx_discoveries_discovered_at (discovered_at DESC)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",

	// Migration 3: Award templates. Name uniqueness is case-insensitive via
	// the utf8mb4_unicode_ci collation.
	"CREATE TABLE IF NOT EXISTS award_templates (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY," +
		"name VARCHAR(255) NOT NULL," +
		"description TEXT NOT NULL," +
		"category VARCHAR(50) NOT NULL," +
		"criteria JSON NOT NULL," +
		"tiers JSON NOT NULL," +
		"points BIGINT NOT NULL DEFAULT 0," +
		"active BOOLEAN NOT NULL DEFAULT TRUE," +
		"version INT NOT NULL DEFAULT 1," +
		"created_by BIGINT NOT NULL DEFAULT 0," +
		"created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"UNIQUE KEY idx_award_templates_name (name)," +
		"INDEX idx_award_templates_category (category)," +
		"INDEX idx_award_templates_active (active)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",

	// Migration 4: User awards. One row per (user, template); tier upgrades
	// update the row in place.
	"CREATE TABLE IF NOT EXISTS user_awards (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY," +
		"user_id BIGINT NOT NULL," +
		"template_id BIGINT NOT NULL," +
		"tier INT NOT NULL DEFAULT 1," +
		"progress JSON NOT NULL," +
		"related_type VARCHAR(50)," +
		"related_id VARCHAR(255)," +
		"granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"upgraded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"FOREIGN KEY (template_id) REFERENCES award_templates(id)," +
		"UNIQUE KEY idx_user_awards_user_template (user_id, template_id)," +
		"INDEX idx_user_awards_user_id (user_id)," +
		"INDEX idx_user_awards_template_id (template_id)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",

	// Migration 5: Contribution records
	"CREATE TABLE IF NOT EXISTS contributions (" +
		"id BIGINT AUTO_INCREMENT PRIMARY KEY," +
		"user_id BIGINT NOT NULL," +
		"kind VARCHAR(50) NOT NULL," +
		"accepted BOOLEAN NOT NULL DEFAULT FALSE," +
		"created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
		"INDEX idx_contributions_user_id (user_id)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
}
