package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	RateLimitPerMin int

	// Logging
	LogLevel  string
	LogFormat string

	// Backend selection
	DataBackend string
	SeedDemo    bool

	// Database
	SQLiteDBPath string
	DatabaseURL  string
	PGMaxConns   int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	DashboardPaymentLimit int
	PaymentMethod         string
	ReceiptCacheSize      int
	ReceiptCacheTTL       time.Duration
	CacheCleanupInterval  time.Duration

	// Google Sheets export (worker)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimitPerMin: getEnvInt("PAYMENT_RATE_LIMIT_PER_MIN", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend: getEnv("DATA_BACKEND", BackendMemory),
		SeedDemo:    getEnvBool("SEED_DEMO", false),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/feedesk.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		PGMaxConns:   getEnvInt("PG_MAX_CONNS", 20),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "feedesk.payments"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_export"),

		DashboardPaymentLimit: getEnvInt("DASHBOARD_PAYMENT_LIMIT", 50),
		PaymentMethod:         getEnv("PAYMENT_METHOD", "card"),
		ReceiptCacheSize:      getEnvInt("RECEIPT_CACHE_SIZE", 256),
		ReceiptCacheTTL:       getEnvDuration("RECEIPT_CACHE_TTL", time.Hour),
		CacheCleanupInterval:  getEnvDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Payments"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}
}

// Validate checks the settings used by the API server and returns every
// problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.SQLiteDBPath) == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendPostgres:
		errors = append(errors, c.validateDatabaseURL()...)
		if c.PGMaxConns < 1 {
			errors = append(errors, fmt.Sprintf("invalid PG max conns %d: must be at least 1", c.PGMaxConns))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	errors = append(errors, c.validateAMQP(false)...)

	if c.DashboardPaymentLimit < 1 || c.DashboardPaymentLimit > 1000 {
		errors = append(errors, fmt.Sprintf("invalid dashboard payment limit %d: must be between 1 and 1000", c.DashboardPaymentLimit))
	}
	if strings.TrimSpace(c.PaymentMethod) == "" {
		errors = append(errors, "payment method cannot be empty")
	}
	if c.ReceiptCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid receipt cache size %d: must not be negative", c.ReceiptCacheSize))
	}
	if c.ReceiptCacheSize > 0 && c.ReceiptCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid receipt cache ttl %v: must be at least 1 second", c.ReceiptCacheTTL))
	}
	if c.RateLimitPerMin < 1 {
		errors = append(errors, fmt.Sprintf("invalid payment rate limit %d: must be at least 1", c.RateLimitPerMin))
	}

	return combine(errors)
}

// ValidateWorker checks the settings used by the export worker.
func (c *Config) ValidateWorker() error {
	var errors []string
	errors = append(errors, c.validateAMQP(true)...)
	if c.DataBackend != BackendSQLite && c.DataBackend != BackendPostgres {
		errors = append(errors, fmt.Sprintf("worker needs a shared data backend, got '%s': must be sqlite or postgres", c.DataBackend))
	}
	if c.DataBackend == BackendPostgres {
		errors = append(errors, c.validateDatabaseURL()...)
	}
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}
	return combine(errors)
}

func (c *Config) validateDatabaseURL() []string {
	if c.DatabaseURL == "" {
		return []string{"DATABASE_URL is required when using postgres backend"}
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return []string{fmt.Sprintf("invalid database URL: %v", err)}
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return []string{fmt.Sprintf("invalid database URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme)}
	}
	return nil
}

func (c *Config) validateAMQP(required bool) []string {
	var errors []string
	if c.AMQPURL == "" {
		if required {
			errors = append(errors, "AMQP_URL is required")
		}
		return errors
	}
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if required && c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty for the worker")
	}
	return errors
}

func combine(errors []string) error {
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
