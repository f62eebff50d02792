// Package main is the entry point for the chemezy reaction service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/awebisam/chemezy/internal/api"
	"github.com/awebisam/chemezy/internal/auth"
	"github.com/awebisam/chemezy/internal/awards"
	"github.com/awebisam/chemezy/internal/config"
	"github.com/awebisam/chemezy/internal/facts"
	"github.com/awebisam/chemezy/internal/leaderboard"
	"github.com/awebisam/chemezy/internal/metrics"
	"github.com/awebisam/chemezy/internal/reaction"
	"github.com/awebisam/chemezy/internal/storage"
	_ "github.com/awebisam/chemezy/internal/storage/memory"
	_ "github.com/awebisam/chemezy/internal/storage/mysql"
	_ "github.com/awebisam/chemezy/internal/storage/postgres"
	"github.com/awebisam/chemezy/internal/synthesis"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chemezy %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting chemezy",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.String("address", cfg.Address()),
	)

	// Create storage backend
	store, err := createStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to create storage backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()

	// Compound fact source
	factsClient := facts.NewHTTPClient(facts.Config{
		BaseURL: cfg.Facts.BaseURL,
		Timeout: time.Duration(cfg.Facts.Timeout) * time.Second,
	})

	// Reaction synthesizer: the chat-completions client when an API key
	// is configured, the deterministic fallback otherwise.
	var synth synthesis.Synthesizer
	if cfg.Synthesizer.APIKey != "" {
		synth, err = synthesis.NewOpenAIClient(synthesis.Config{
			APIKey:      cfg.Synthesizer.APIKey,
			BaseURL:     cfg.Synthesizer.BaseURL,
			Model:       cfg.Synthesizer.Model,
			Temperature: cfg.Synthesizer.Temperature,
			MaxTokens:   cfg.Synthesizer.MaxTokens,
			Timeout:     time.Duration(cfg.Synthesizer.Timeout) * time.Second,
		})
		if err != nil {
			logger.Error("failed to create synthesizer", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("no synthesizer API key configured, using deterministic fallback")
		synth = &synthesis.Fallback{}
	}

	// Leaderboard views, invalidated on every award change.
	lb := leaderboard.New(store, logger,
		leaderboard.WithTTL(time.Duration(cfg.Leaderboard.TTL)*time.Second),
		leaderboard.WithMetrics(m),
	)

	// Award evaluation engine and its async dispatcher.
	engine := awards.NewEngine(store, logger,
		awards.WithInvalidator(lb),
		awards.WithMetrics(m),
	)
	dispatcher := awards.NewDispatcher(engine, logger,
		awards.WithQueueSize(cfg.Awards.QueueSize),
		awards.WithWorkers(cfg.Awards.Workers),
		awards.WithEvalTimeout(time.Duration(cfg.Awards.EvalTimeout)*time.Second),
		awards.WithDispatcherMetrics(m),
	)
	dispatcher.Start()

	// Seed award templates from file and optionally hot-reload on edits.
	var seeder *awards.Seeder
	if cfg.Awards.SeedFile != "" {
		seeder = awards.NewSeeder(store, cfg.Awards.SeedFile, logger)
		if err := seeder.Apply(context.Background()); err != nil {
			logger.Error("failed to seed award templates", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if cfg.Awards.WatchSeed {
			if err := seeder.Watch(context.Background()); err != nil {
				logger.Error("failed to watch seed file", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}
	}

	// Reaction resolution pipeline
	ledger := reaction.NewLedger(store, logger)
	cache := reaction.New(store, factsClient, synth, ledger, logger,
		reaction.WithNotifier(dispatcher),
		reaction.WithMetrics(m),
		reaction.WithTimeout(time.Duration(cfg.Synthesizer.Timeout)*time.Second),
	)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		logger.Error("failed to create token verifier", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled, requests run as the dev identity")
	}

	server := api.NewServer(cfg, api.Deps{
		Store:       store,
		Cache:       cache,
		Ledger:      ledger,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Leaderboard: lb,
		Verifier:    verifier,
		Metrics:     m,
	}, logger)

	// Handle shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}

		// Drain queued award evaluations before closing storage.
		dispatcher.Stop()

		if seeder != nil {
			if err := seeder.Close(); err != nil {
				logger.Error("seed watcher close error", slog.String("error", err.Error()))
			}
		}

		if err := store.Close(); err != nil {
			logger.Error("storage close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("shutdown complete")
}

// setupLogger builds the process logger from logging configuration.
// When a file is configured the output rotates via lumberjack.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// createStorage opens the configured storage backend through the
// factory registry. Backends register themselves via the blank imports
// above; defaults for unset settings live with each backend.
func createStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	var settings storage.Settings

	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory storage")

	case "postgresql", "postgres":
		pg := cfg.Storage.PostgreSQL
		logger.Info("connecting to PostgreSQL",
			slog.String("host", pg.Host),
			slog.Int("port", pg.Port),
			slog.String("database", pg.Database),
		)
		settings = storage.Settings{
			Host:            pg.Host,
			Port:            pg.Port,
			Database:        pg.Database,
			Username:        pg.User,
			Password:        pg.Password,
			SSLMode:         pg.SSLMode,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetime) * time.Second,
		}

	case "mysql":
		my := cfg.Storage.MySQL
		logger.Info("connecting to MySQL",
			slog.String("host", my.Host),
			slog.Int("port", my.Port),
			slog.String("database", my.Database),
		)
		settings = storage.Settings{
			Host:            my.Host,
			Port:            my.Port,
			Database:        my.Database,
			Username:        my.User,
			Password:        my.Password,
			TLS:             my.TLS,
			MaxOpenConns:    my.MaxOpenConns,
			MaxIdleConns:    my.MaxIdleConns,
			ConnMaxLifetime: time.Duration(my.ConnMaxLifetime) * time.Second,
		}
	}

	return storage.Open(cfg.Storage.Type, settings)
}
