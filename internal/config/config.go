package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string

	// AMQP (optional, ledger events are dropped when empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	DefaultUserID      string
	OverfundingPolicy  string
	PlanningAnnualRate float64

	// Workers
	RecurringInterval  time.Duration
	DriftCheckInterval time.Duration
	DriftAutoHeal      bool

	// Planner cache
	PlannerCacheSize int
	PlannerCacheTTL  time.Duration

	// Backend selection
	DataBackend string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/risparmi.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "risparmi"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		DefaultUserID:      getEnv("DEFAULT_USER_ID", "local"),
		OverfundingPolicy:  getEnv("OVERFUNDING_POLICY", "allow"),
		PlanningAnnualRate: getEnvFloat("PLANNING_ANNUAL_RATE", 0),

		RecurringInterval:  getEnvDuration("RECURRING_INTERVAL", time.Hour),
		DriftCheckInterval: getEnvDuration("DRIFT_CHECK_INTERVAL", time.Hour),
		DriftAutoHeal:      getEnvBool("DRIFT_AUTO_HEAL", false),

		PlannerCacheSize: getEnvInt("PLANNER_CACHE_SIZE", 256),
		PlannerCacheTTL:  getEnvDuration("PLANNER_CACHE_TTL", 10*time.Minute),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP only when configured
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if strings.TrimSpace(c.DefaultUserID) == "" {
		errors = append(errors, "default user id cannot be empty")
	}

	validPolicies := []string{"allow", "cap", "reject"}
	if !slices.Contains(validPolicies, c.OverfundingPolicy) {
		errors = append(errors, fmt.Sprintf("invalid overfunding policy '%s': must be one of %v", c.OverfundingPolicy, validPolicies))
	}

	if c.PlanningAnnualRate < 0 || c.PlanningAnnualRate > 100 {
		errors = append(errors, fmt.Sprintf("invalid planning annual rate %v: must be between 0 and 100", c.PlanningAnnualRate))
	}

	// Validate worker configuration
	if c.RecurringInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 second", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if c.DriftCheckInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid drift check interval %v: must be at least 1 minute", c.DriftCheckInterval))
	}

	if c.PlannerCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid planner cache size %d: must be at least 1", c.PlannerCacheSize))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateLedgerWorker checks the settings ledger-worker needs on top of
// Validate. The worker reads the store the API server writes, so it needs
// a shared backend, and it only reports drift: the per-goal guard lives in
// the API process, which is where DRIFT_AUTO_HEAL runs.
func (c *Config) ValidateLedgerWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required to consume ledger events")
	}
	if c.DataBackend != "sqlite" {
		errors = append(errors, fmt.Sprintf("data backend '%s' is not shared between processes: ledger-worker needs sqlite", c.DataBackend))
	}
	if c.DriftAutoHeal {
		errors = append(errors, "DRIFT_AUTO_HEAL must be off for ledger-worker: resync runs in the API server")
	}
	if len(errors) > 0 {
		return fmt.Errorf("ledger-worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
