package config

import (
	"errors"
	"os"
	"strings"
)

// ErrElevatedUnavailable is returned by Validate when the elevated credentials are missing.
// The elevated path never falls back to the restricted credentials.
var ErrElevatedUnavailable = errors.New("elevated credentials are not configured")

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: sessions, tokens, API keys and sign-in providers
//   - database.go: restricted and elevated database pools, Redis
//   - http.go: HTTP server configuration
//   - storage.go: blob storage for uploads
//   - observability.go: logging and metrics
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	// Postgres is the restricted pool. Queries through it are subject to row-level security.
	Postgres DBConfig `envPrefix:"DB_"`
	// Elevated is the service pool that bypasses row-level security.
	// It is used only by the access gate and administrative operations.
	Elevated DBConfig    `envPrefix:"DB_SERVICE_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP    HTTPConfig
	Storage StorageConfig `envPrefix:"STORAGE_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()
	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Storage.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that must stop the process.
func (c *AppConfig) Validate() error {
	if err := c.Auth.Validate(c.IsDev); err != nil {
		return err
	}
	if !c.Elevated.Configured() || strings.TrimSpace(c.Auth.ServiceRoleKey) == "" {
		return ErrElevatedUnavailable
	}
	return nil
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
