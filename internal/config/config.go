// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every tunable for the service. Each field has an explicit
// default so a bare environment still yields a runnable configuration.
type Config struct {
	Port    int    `env:"QB_PORT,default=8080"`
	DataDir string `env:"QB_DATA_DIR,default=./data"`

	// Storage selects the membership/audit store backend: memory, bbolt
	// or postgres.
	Storage     string `env:"QB_STORAGE,default=bbolt"`
	PostgresDSN string `env:"QB_POSTGRES_DSN,default="`

	// CanonicalHost is the public hostname; session cookies for it and its
	// www variant are rewritten to the shared parent domain.
	CanonicalHost string `env:"QB_CANONICAL_HOST,default=localhost"`

	// IdentityProviderURL is the base URL of the external identity service.
	IdentityProviderURL     string        `env:"QB_IDENTITY_URL,default=http://localhost:9096"`
	IdentityProviderTimeout time.Duration `env:"QB_IDENTITY_TIMEOUT,default=5s"`

	// LedgerEngineURL is the base URL of the external ledger engine RPC
	// surface.
	LedgerEngineURL     string        `env:"QB_ENGINE_URL,default=http://localhost:9097"`
	LedgerEngineTimeout time.Duration `env:"QB_ENGINE_TIMEOUT,default=10s"`

	// RateLimitRPS and RateLimitBurst configure the per-key token bucket.
	RateLimitRPS   int `env:"QB_RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int `env:"QB_RATE_LIMIT_BURST,default=20"`

	// RedisURL, when set, switches rate limiting to a shared Redis
	// fixed-window counter so limits hold across processes.
	RedisURL string `env:"QB_REDIS_URL,default="`

	// AuditWebhookURL, when set, mirrors audit records to an external sink.
	AuditWebhookURL        string `env:"QB_AUDIT_WEBHOOK_URL,default="`
	AuditWebhookAuthHeader string `env:"QB_AUDIT_WEBHOOK_AUTH,default="`
}

// Load reads an optional .env file and then decodes the environment into a
// Config. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case "memory", "bbolt", "postgres":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Storage == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("QB_POSTGRES_DSN is required when QB_STORAGE=postgres")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	return nil
}
