// Package config loads static configuration from the environment and
// dynamic tuning values from an optional JSON file reloaded on change.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pkgerrors "flowsketch-backend/pkg/errors"
)

// Config is the static process configuration, read once at startup
type Config struct {
	Environment    string
	Port           int
	LogLevel       string
	JWTSecret      string
	AllowedOrigins []string

	ParserBaseURL string
	ParserTimeout time.Duration

	// DynamicPath points at the optional dynamic config JSON file
	DynamicPath string

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment with sane defaults
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		Port:            getEnvInt("PORT", 8080),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		ParserBaseURL:   getEnv("PARSER_BASE_URL", ""),
		ParserTimeout:   getEnvDuration("PARSER_TIMEOUT", 10*time.Second),
		DynamicPath:     os.Getenv("DYNAMIC_CONFIG_PATH"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, pkgerrors.NewValidationError("PORT must be between 1 and 65535")
	}
	if cfg.IsProduction() && cfg.JWTSecret == "" {
		return nil, pkgerrors.NewValidationError("JWT_SECRET is required in production")
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
