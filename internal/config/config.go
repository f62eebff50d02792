// Package config provides configuration management for the reaction service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the reaction service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Facts       FactsConfig       `yaml:"facts"`
	Awards      AwardsConfig      `yaml:"awards"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

// StorageConfig represents storage backend configuration.
type StorageConfig struct {
	Type       string           `yaml:"type"` // memory, postgresql, mysql
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MySQL      MySQLConfig      `yaml:"mysql"`
}

// PostgreSQLConfig represents PostgreSQL connection configuration.
type PostgreSQLConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// MySQLConfig represents MySQL connection configuration.
type MySQLConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	TLS             string `yaml:"tls"` // true, false, skip-verify, preferred
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// SynthesizerConfig represents reaction synthesizer configuration.
// With no API key the service falls back to a deterministic stub,
// which is only useful for development.
type SynthesizerConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// FactsConfig represents compound fact source configuration.
type FactsConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// AwardsConfig represents award engine configuration.
type AwardsConfig struct {
	SeedFile    string `yaml:"seed_file"`
	WatchSeed   bool   `yaml:"watch_seed"`
	QueueSize   int    `yaml:"queue_size"`
	Workers     int    `yaml:"workers"`
	EvalTimeout int    `yaml:"eval_timeout"` // seconds
}

// LeaderboardConfig represents leaderboard view configuration.
type LeaderboardConfig struct {
	TTL int `yaml:"ttl"` // seconds a materialized view may serve without rebuild
}

// AuthConfig represents JWT authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
	// File enables log rotation when set; empty logs to stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Storage: StorageConfig{
			Type: "memory",
		},
		Synthesizer: SynthesizerConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     30,
		},
		Facts: FactsConfig{
			Timeout: 10,
		},
		Awards: AwardsConfig{
			QueueSize:   256,
			Workers:     2,
			EvalTimeout: 10,
		},
		Leaderboard: LeaderboardConfig{
			TTL: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Load from file if provided
	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config file
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHEMEZY_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CHEMEZY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CHEMEZY_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("CHEMEZY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHEMEZY_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	// PostgreSQL overrides
	if v := os.Getenv("CHEMEZY_PG_HOST"); v != "" {
		c.Storage.PostgreSQL.Host = v
	}
	if v := os.Getenv("CHEMEZY_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Storage.PostgreSQL.Port = port
		}
	}
	if v := os.Getenv("CHEMEZY_PG_DATABASE"); v != "" {
		c.Storage.PostgreSQL.Database = v
	}
	if v := os.Getenv("CHEMEZY_PG_USER"); v != "" {
		c.Storage.PostgreSQL.User = v
	}
	if v := os.Getenv("CHEMEZY_PG_PASSWORD"); v != "" {
		c.Storage.PostgreSQL.Password = v
	}
	if v := os.Getenv("CHEMEZY_PG_SSLMODE"); v != "" {
		c.Storage.PostgreSQL.SSLMode = v
	}

	// MySQL overrides
	if v := os.Getenv("CHEMEZY_MYSQL_HOST"); v != "" {
		c.Storage.MySQL.Host = v
	}
	if v := os.Getenv("CHEMEZY_MYSQL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Storage.MySQL.Port = port
		}
	}
	if v := os.Getenv("CHEMEZY_MYSQL_DATABASE"); v != "" {
		c.Storage.MySQL.Database = v
	}
	if v := os.Getenv("CHEMEZY_MYSQL_USER"); v != "" {
		c.Storage.MySQL.User = v
	}
	if v := os.Getenv("CHEMEZY_MYSQL_PASSWORD"); v != "" {
		c.Storage.MySQL.Password = v
	}
	if v := os.Getenv("CHEMEZY_MYSQL_TLS"); v != "" {
		c.Storage.MySQL.TLS = v
	}

	// Synthesizer overrides. OPENAI_API_KEY is honored as a fallback so
	// local .env files work unchanged.
	if v := os.Getenv("CHEMEZY_SYNTHESIZER_API_KEY"); v != "" {
		c.Synthesizer.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Synthesizer.APIKey == "" {
		c.Synthesizer.APIKey = v
	}
	if v := os.Getenv("CHEMEZY_SYNTHESIZER_BASE_URL"); v != "" {
		c.Synthesizer.BaseURL = v
	}
	if v := os.Getenv("CHEMEZY_SYNTHESIZER_MODEL"); v != "" {
		c.Synthesizer.Model = v
	}

	// Facts overrides
	if v := os.Getenv("CHEMEZY_FACTS_BASE_URL"); v != "" {
		c.Facts.BaseURL = v
	}

	// Awards overrides
	if v := os.Getenv("CHEMEZY_AWARDS_SEED_FILE"); v != "" {
		c.Awards.SeedFile = v
	}
	if v := os.Getenv("CHEMEZY_AWARDS_WATCH_SEED"); v != "" {
		c.Awards.WatchSeed = strings.ToLower(v) == "true" || v == "1"
	}

	// Auth overrides
	if v := os.Getenv("CHEMEZY_AUTH_ENABLED"); v != "" {
		c.Auth.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CHEMEZY_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("CHEMEZY_AUTH_ISSUER"); v != "" {
		c.Auth.Issuer = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validStorageTypes := map[string]bool{
		"memory":     true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validStorageTypes[c.Storage.Type] {
		return fmt.Errorf("invalid storage type: %s", c.Storage.Type)
	}

	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required when auth is enabled")
	}

	if c.Synthesizer.Timeout < 1 {
		return fmt.Errorf("invalid synthesizer timeout: %d", c.Synthesizer.Timeout)
	}
	if c.Facts.Timeout < 1 {
		return fmt.Errorf("invalid facts timeout: %d", c.Facts.Timeout)
	}
	if c.Leaderboard.TTL < 1 {
		return fmt.Errorf("invalid leaderboard ttl: %d", c.Leaderboard.TTL)
	}
	if c.Awards.QueueSize < 1 {
		return fmt.Errorf("invalid award queue size: %d", c.Awards.QueueSize)
	}
	if c.Awards.Workers < 1 {
		return fmt.Errorf("invalid award worker count: %d", c.Awards.Workers)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}

// Address returns the server address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
