// Package config loads runtime configuration from a YAML file with
// environment-variable overrides, plus the static experiment data files
// describing the market's businesses and customers.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"bazaar/internal/database"
	"bazaar/internal/logging"
)

// Config is the full runtime configuration of the marketplace daemon and the
// simulation runner.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    logging.Config   `yaml:"logging"`
	Experiment ExperimentConfig `yaml:"experiment"`
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	Port        int    `yaml:"port" split_words:"true"`
	MetricsPort int    `yaml:"metrics_port" split_words:"true"`
	AuthSecret  string `yaml:"auth_secret" split_words:"true"`
}

// DatabaseConfig selects and parametrizes the persistence backend.
type DatabaseConfig struct {
	Backend     string `yaml:"backend"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path" split_words:"true"`
	PostgresDSN string `yaml:"postgres_dsn" split_words:"true"`
	Schema      string `yaml:"schema"`
	SchemaMode  string `yaml:"schema_mode" split_words:"true"`
}

// ExperimentConfig shapes one simulation run.
type ExperimentConfig struct {
	SearchAlgorithm  string        `yaml:"search_algorithm" split_words:"true"`
	IndexMenuPrices  bool          `yaml:"index_menu_prices" split_words:"true"`
	IndexAmenities   bool          `yaml:"index_amenities" split_words:"true"`
	FetchPersistence string        `yaml:"fetch_persistence" split_words:"true"`
	PollInterval     time.Duration `yaml:"poll_interval" split_words:"true"`
	MaxSteps         int           `yaml:"max_steps" split_words:"true"`
	BusinessesFile   string        `yaml:"businesses_file" split_words:"true"`
	CustomersFile    string        `yaml:"customers_file" split_words:"true"`
}

// Default returns the configuration used when the file and environment are
// silent.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			MetricsPort: 9090,
			AuthSecret:  "dev-secret",
		},
		Database: DatabaseConfig{
			Backend:    "sqlite",
			SQLitePath: "data/market.db",
			Schema:     "experiment",
			SchemaMode: string(database.SchemaExisting),
		},
		Experiment: ExperimentConfig{
			SearchAlgorithm:  "lexical",
			FetchPersistence: "all",
			PollInterval:     2 * time.Second,
			MaxSteps:         20,
		},
	}
}

// Load reads the YAML file at path (skipped when empty) over the defaults,
// then applies BAZAAR_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process("bazaar", &cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}
	return cfg, nil
}

// OpenStore opens the configured persistence backend.
func OpenStore(cfg DatabaseConfig) (database.Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return database.OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return database.OpenPostgres(cfg.PostgresDSN, cfg.Schema, database.SchemaMode(cfg.SchemaMode))
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}
