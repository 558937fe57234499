// Package config loads the service configuration from the environment once at
// startup. The resulting Config is passed explicitly to every component.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	EnvVars
	Cors
	OAuth
	Security
}

// Load reads an optional .env file, then parses the environment into a Config.
// Variables already present in the environment win over the .env file.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...) // missing .env is fine
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports configuration defects that make the service unable to start.
// A missing provider client id/secret is not one of them: the login routes
// answer with a server error instead.
func (c Config) Validate() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.LoginStateTTL <= 0 {
		return fmt.Errorf("LOGIN_STATE_TTL must be positive, got %s", c.LoginStateTTL)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	return nil
}
