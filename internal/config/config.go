package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AppEnv        string
	DatabaseURL   string
	JWTSecret     string
	TokenTTL      time.Duration
	AdminToken    string
	AdminPassword string
	CORSOrigin    string
}

// Dev reports whether the server runs in local development mode.
func (c Config) Dev() bool {
	return c.AppEnv == "dev"
}

// Load reads a .env file when present, then the process environment.
// A missing .env file is not an error; real deployments set variables directly.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          valueOrDefault("PORT", "8080"),
		AppEnv:        valueOrDefault("APP_ENV", "prod"),
		DatabaseURL:   valueOrDefault("DATABASE_URL", "sqlite://krishi.db"),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AdminToken:    strings.TrimSpace(os.Getenv("X_ADMIN_TOKEN")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		CORSOrigin:    valueOrDefault("CORS_ORIGIN", "*"),
	}

	ttl, err := time.ParseDuration(valueOrDefault("TOKEN_TTL", "168h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if ttl <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: must be positive")
	}
	cfg.TokenTTL = ttl

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	// Fail closed: the admin routes cannot be protected without a token.
	if cfg.AdminToken == "" {
		return Config{}, fmt.Errorf("X_ADMIN_TOKEN is required")
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
