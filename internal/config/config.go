// Package config loads the server configuration from TURNSTILE_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	// DevJWTSecret signs bearer tokens in dev when no secret is configured.
	DevJWTSecret = "turnstile-dev-secret-do-not-use-in-prod"

	minProdSecretLen = 32
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`

	Env   string `env:"ENV" envDefault:"dev"` // "dev" | "prod"
	Debug bool   `env:"DEBUG"`

	// Storage
	Store  string `env:"STORE" envDefault:"sqlite"` // "sqlite" | "memory"
	DBPath string `env:"DB_PATH" envDefault:"./data/turnstile.db"`

	JWTSecret string `env:"JWT_SECRET"`

	// Stats refresher.  0 disables the background loop.
	StatsRefreshInterval time.Duration `env:"STATS_REFRESH_INTERVAL" envDefault:"30s"`
	StatsTimeout         time.Duration `env:"STATS_TIMEOUT" envDefault:"10s"`

	// Limits applied to newly opened wallets.  0 means no limit.
	DefaultTxLimitCents    int64 `env:"DEFAULT_TX_LIMIT_CENTS"`
	DefaultDailyLimitCents int64 `env:"DEFAULT_DAILY_LIMIT_CENTS"`

	// OTLP/HTTP collector URL.  Empty disables tracing.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// Optional YAML file of gates upserted at startup.
	GatesFile string `env:"GATES_FILE"`
}

// Load reads the given .env files (missing files are skipped; variables
// already set win) and parses the environment.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TURNSTILE_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != EnvDev && c.Env != EnvProd {
		// fail-soft: treat unknown as dev
		c.Env = EnvDev
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))

	switch {
	case c.Store != StoreSQLite && c.Store != StoreMemory:
		return Config{}, fmt.Errorf("TURNSTILE_STORE must be %q or %q, got %q", StoreSQLite, StoreMemory, c.Store)
	case c.Env == EnvProd && c.Store == StoreMemory:
		return Config{}, errors.New("the memory store is not allowed in prod")
	case c.StatsRefreshInterval < 0 || c.StatsTimeout < 0:
		return Config{}, errors.New("stats durations must not be negative")
	case c.DefaultTxLimitCents < 0 || c.DefaultDailyLimitCents < 0:
		return Config{}, errors.New("default limits must not be negative")
	}

	if c.JWTSecret == "" {
		if c.Env == EnvProd {
			return Config{}, errors.New("TURNSTILE_JWT_SECRET is required in prod")
		}
		c.JWTSecret = DevJWTSecret
	}
	if c.Env == EnvProd && len(c.JWTSecret) < minProdSecretLen {
		return Config{}, fmt.Errorf("TURNSTILE_JWT_SECRET must be at least %d bytes in prod", minProdSecretLen)
	}
	return c, nil
}

// IsDev reports whether dev-only behaviour (seed data, relaxed secrets) is on.
func (c Config) IsDev() bool { return c.Env == EnvDev }

func limit(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// TxLimit returns the default per-transaction limit, nil when unset.
func (c Config) TxLimit() *int64 { return limit(c.DefaultTxLimitCents) }

// DailyLimit returns the default daily spend limit, nil when unset.
func (c Config) DailyLimit() *int64 { return limit(c.DefaultDailyLimitCents) }
