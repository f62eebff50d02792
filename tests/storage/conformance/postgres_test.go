//go:build conformance

package conformance

import (
	"database/sql"
	"testing"

	_ "github.com/lib/pq"

	"github.com/awebisam/chemezy/internal/storage"
	"github.com/awebisam/chemezy/internal/storage/postgres"
)

func TestPostgresBackend(t *testing.T) {
	cfg := postgres.Config{
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     getEnvOrDefaultInt("POSTGRES_PORT", 5432),
		Username: getEnvOrDefault("POSTGRES_USER", "chemezy"),
		Password: getEnvOrDefault("POSTGRES_PASSWORD", "chemezy"),
		Database: getEnvOrDefault("POSTGRES_DATABASE", "chemezy"),
		SSLMode:  "disable",
	}

	store, err := postgres.NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL store: %v", err)
	}
	defer store.Close()

	RunAll(t, func() storage.Storage {
		truncatePostgres(t, cfg)
		return &noCloseStore{store}
	})
}

func truncatePostgres(t *testing.T, cfg postgres.Config) {
	t.Helper()

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL for cleanup: %v", err)
	}
	defer db.Close()

	_, err = db.Exec("TRUNCATE TABLE user_awards, contributions, award_templates, discoveries, reaction_outcomes RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("Failed to clean PostgreSQL: %v", err)
	}
}
