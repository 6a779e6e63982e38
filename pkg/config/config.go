// Package config loads kakeibo settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Defaults applied when the environment leaves a setting empty.
const (
	DefaultStore      = "memory"
	DefaultAddr       = ":8080"
	DefaultMoneyTable = "money_table"
	DefaultLineTable  = "line_transaction_t"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// Store is the name of the storage backend plugin (memory, postgres, redis).
	// Environment variable: KAKEIBO_STORE
	Store string `koanf:"KAKEIBO_STORE"`

	// Addr is the listen address of the HTTP server.
	// Environment variable: KAKEIBO_ADDR
	Addr string `koanf:"KAKEIBO_ADDR"`

	// MoneyTable holds the financial records served by the CRUD API.
	// Environment variable: KAKEIBO_MONEY_TABLE
	MoneyTable string `koanf:"KAKEIBO_MONEY_TABLE"`

	// LineTable holds the records written by webhook ingestion.
	// Environment variable: KAKEIBO_LINE_TABLE
	LineTable string `koanf:"KAKEIBO_LINE_TABLE"`

	// KeywordsFile is an optional YAML file overriding the parser keyword groups.
	// Environment variable: KAKEIBO_CONFIG
	KeywordsFile string `koanf:"KAKEIBO_CONFIG"`

	// GSheetsTitle, GSheetsID and GSheetsName configure the sheets exporter.
	GSheetsTitle string `koanf:"GSHEETS_TITLE"`
	GSheetsID    string `koanf:"GSHEETS_ID"`
	GSheetsName  string `koanf:"GSHEETS_NAME"`

	Postgres PostgresConfig `koanf:",squash"`
	Redis    RedisConfig    `koanf:",squash"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `koanf:"REDIS_ADDR"`
	Password string `koanf:"REDIS_PASSWORD"`
	DB       int    `koanf:"REDIS_DB"`
}

// Load reads the process environment into a Config and applies defaults.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = DefaultStore
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MoneyTable == "" {
		c.MoneyTable = DefaultMoneyTable
	}
	if c.LineTable == "" {
		c.LineTable = DefaultLineTable
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}
