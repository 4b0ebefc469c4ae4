package retry

import (
	"os"
	"strconv"
	"time"
)

// Config is a retry policy expressed as data: maximum attempts, base delay,
// doubling backoff and a delay cap.
type Config struct {
	Enabled      bool          // Enable/disable retries entirely
	MaxAttempts  int           // Total attempts including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the doubled delay
}

// DefaultConfig is the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// LoadConfig reads the retry policy from environment variables, falling back
// to defaults for anything unset or unparseable.
func LoadConfig(prefix string) Config {
	def := DefaultConfig()
	return Config{
		Enabled:      getEnvAsBool(prefix+"_RETRY_ENABLED", def.Enabled),
		MaxAttempts:  getEnvAsInt(prefix+"_RETRY_MAX_ATTEMPTS", def.MaxAttempts),
		InitialDelay: time.Duration(getEnvAsInt(prefix+"_RETRY_INITIAL_DELAY_MS", int(def.InitialDelay.Milliseconds()))) * time.Millisecond,
		MaxDelay:     time.Duration(getEnvAsInt(prefix+"_RETRY_MAX_DELAY_MS", int(def.MaxDelay.Milliseconds()))) * time.Millisecond,
	}
}

// Helper: get bool from env
func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
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
