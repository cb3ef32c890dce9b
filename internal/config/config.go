// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectURL   string `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/oauth2callback"`

	// VerifyToken is the shared secret echoed back in every notification.
	VerifyToken string `env:"VERIFY_TOKEN" envDefault:"I_AM_YOUR_FATHER"`
	// CallbackURL must be HTTPS for the Mirror API to accept it.
	CallbackURL   string `env:"CALLBACK_URL" envDefault:"https://cartoglass.appspot.com/subscription"`
	StaticBaseURL string `env:"STATIC_BASE_URL" envDefault:"https://cartoglass.appspot.com"`
	MirrorBaseURL string `env:"MIRROR_BASE_URL" envDefault:"https://www.googleapis.com/mirror/v1/"`

	CartoDBAPIKey   string `env:"CARTODB_API_KEY"`
	CartoDBEndpoint string `env:"CARTODB_ENDPOINT" envDefault:"http://zugaldia.cartodb.com/api/v2/sql"`
	CartoDBTable    string `env:"CARTODB_TABLE" envDefault:"cartoglass"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMigrate   bool   `env:"DB_MIGRATE" envDefault:"true"`
	RedisURL    string `env:"REDIS_URL"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	StateTTL      time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	// LocationMinInterval throttles location fetches per user; zero disables it.
	LocationMinInterval time.Duration `env:"LOCATION_MIN_INTERVAL" envDefault:"0s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
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

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.VerifyToken == "" {
		missing = append(missing, "VERIFY_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }
