// Package config loads the server's runtime configuration from
// environment variables, infrastructure-component style: one flat
// struct, no remote config source.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the application configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseDSN configures internal/sink/postgres. Empty means no
	// durable sink: the server falls back to sink.Noop.
	DatabaseDSN string

	// JWTSecret signs and validates WebSocket observer tokens. Empty
	// disables authentication (internal/sink/wsobserver.NoAuth).
	JWTSecret string

	MaxConcurrency   int
	MaxExecutionTime time.Duration
	MaxExecutions    int

	// APIKeys gates the REST API with an X-API-Key / bearer token check.
	// Empty disables authentication (local development).
	APIKeys []string

	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads Config from the process environment, applying the same
// defaults a local development run needs.
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:      getEnv("DATABASE_DSN", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 8),
		MaxExecutionTime: getEnvDuration("MAX_EXECUTION_TIME", 5*time.Minute),
		MaxExecutions:    getEnvInt("MAX_EXECUTIONS", 0),
		APIKeys:          getEnvList("API_KEYS"),
		RateLimit:        getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// GetPortInt returns the port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
