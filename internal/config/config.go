package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "ledger/internal/log"
)

type Config struct {
	// HTTP Server
	Port      string
	RateLimit int

	// Database
	DBPath      string
	ReadOnly    bool
	BusyTimeout time.Duration
	SelfTest    bool

	// Category catalog override
	CategoriesPath string

	// AMQP; an empty URL disables change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	LogLevel string
}

// DefaultDBPath places the database in the system temporary directory.
func DefaultDBPath() string {
	return filepath.Join(os.TempDir(), "expenses.db")
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8000"),
		RateLimit: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DBPath:      getEnv("LEDGER_DB_PATH", DefaultDBPath()),
		ReadOnly:    getEnvBool("LEDGER_READ_ONLY", false),
		BusyTimeout: getEnvDuration("LEDGER_BUSY_TIMEOUT", 5*time.Second),
		SelfTest:    getEnvBool("LEDGER_SELF_TEST", true),

		CategoriesPath: getEnv("CATEGORIES_PATH", "categories.json"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimit))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	}

	if c.BusyTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid busy timeout %v: must not be negative", c.BusyTimeout))
	} else if c.BusyTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid busy timeout %v: must be at most 5 minutes", c.BusyTimeout))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

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

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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
