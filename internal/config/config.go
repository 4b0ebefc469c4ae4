package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration, loaded from environment variables.
type Config struct {
	// Kaspa REST API base URL
	LedgerAPIURL string

	// External signing service base URL (holds the wallet key)
	SignerURL string

	// HTTP API port
	APIPort int

	// Optional PostgreSQL URL; when empty, write progress is in-memory only
	DatabaseURL string

	// TTL for profile, story and feed view caches
	CacheTTL time.Duration

	// Fixed pause between successful segment submissions
	SegmentDelay time.Duration

	// Per-request timeout for ledger fetches
	FetchTimeout time.Duration

	// Log level: debug, info, warn, error
	LogLevel string
}

// Load returns the configuration from the environment.
func Load() *Config {
	return &Config{
		LedgerAPIURL: getEnv("LEDGER_API_URL", "https://api.kaspa.org"),
		SignerURL:    getEnv("SIGNER_URL", "http://localhost:8181"),
		APIPort:      getEnvAsInt("API_PORT", 8080),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CacheTTL:     time.Duration(getEnvAsInt("CACHE_TTL_SEC", 30)) * time.Second,
		SegmentDelay: time.Duration(getEnvAsInt("SEGMENT_DELAY_MS", 500)) * time.Millisecond,
		FetchTimeout: time.Duration(getEnvAsInt("FETCH_TIMEOUT_SEC", 10)) * time.Second,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.LedgerAPIURL == "" {
		return fmt.Errorf("LEDGER_API_URL is required")
	}
	if c.SignerURL == "" {
		return fmt.Errorf("SIGNER_URL is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	return nil
}

// Helper: get string from env
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
