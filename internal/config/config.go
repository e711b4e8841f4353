package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/rates"

	"github.com/joho/godotenv"
)

// Backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

var validBackends = []string{BackendMemory, BackendFile, BackendSQLite}

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	RateLimitBurst     int

	// Persistence
	DataBackend  string
	SnapshotFile string
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Exchange rates
	RatesURL             string
	RatesBase            string
	RatesTTL             time.Duration
	RatesTimeout         time.Duration
	RatesRefreshInterval time.Duration

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleExpensesSheet      string
	GoogleSummarySheet       string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string
	ExportInterval           time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads the environment, after applying a .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		DataBackend:  getEnv("DATA_BACKEND", BackendFile),
		SnapshotFile: getEnv("SNAPSHOT_FILE", "./data/budget.json"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		RatesURL:             getEnv("RATES_URL", rates.DefaultURL),
		RatesBase:            strings.ToUpper(getEnv("RATES_BASE", "USD")),
		RatesTTL:             getEnvDuration("RATES_TTL", rates.DefaultTTL),
		RatesTimeout:         getEnvDuration("RATES_TIMEOUT", 10*time.Second),
		RatesRefreshInterval: getEnvDuration("RATES_REFRESH_INTERVAL", time.Hour),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleExpensesSheet:      getEnv("GOOGLE_EXPENSES_SHEET", "Expenses"),
		GoogleSummarySheet:       getEnv("GOOGLE_SUMMARY_SHEET", "Summary"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		ExportInterval:           getEnvDuration("EXPORT_INTERVAL", 15*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks the server configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendFile && c.SnapshotFile == "" {
		errs = append(errs, "snapshot file path cannot be empty when using file backend")
	}
	if c.DataBackend == BackendSQLite && c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if u, err := url.Parse(c.RatesURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("invalid rates URL '%s': must be http or https", c.RatesURL))
	}
	if _, err := core.NormalizeCurrency(c.RatesBase); err != nil {
		errs = append(errs, fmt.Sprintf("invalid rates base '%s': unknown currency", c.RatesBase))
	}
	if c.RatesTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid rates TTL %v: must be at least 1 minute", c.RatesTTL))
	}
	if c.RatesTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid rates timeout %v: must be positive", c.RatesTimeout))
	}
	if c.RatesRefreshInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid rates refresh interval %v: must be at least 1 minute", c.RatesRefreshInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	return combine(errs)
}

// ValidateWorker checks what the export worker needs on top of a shared store.
func (c *Config) ValidateWorker() error {
	var errs []string
	if c.DataBackend == BackendMemory {
		errs = append(errs, "export worker needs a shared data backend (file or sqlite), not memory")
	}
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP URL is required by the export worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "Google Spreadsheet ID is required by the export worker")
	}
	hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	hasOAuthClient := c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != ""
	switch {
	case hasServiceAccount:
		if c.GoogleServiceAccountJSON == "" {
			errs = appendMissingFile(errs, "Google service account", c.GoogleServiceAccountFile)
		}
	case hasOAuthClient:
		if c.GoogleOAuthClientJSON == "" {
			errs = appendMissingFile(errs, "Google OAuth client", c.GoogleOAuthClientFile)
		}
		if c.GoogleOAuthTokenJSON == "" && c.GoogleOAuthTokenFile == "" {
			errs = append(errs, "GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE is required with an OAuth client (run oauth-init)")
		} else if c.GoogleOAuthTokenJSON == "" {
			errs = appendMissingFile(errs, "Google OAuth token", c.GoogleOAuthTokenFile)
		}
	default:
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_OAUTH_CLIENT_JSON/FILE must be provided")
	}
	if c.ExportInterval < 0 {
		errs = append(errs, fmt.Sprintf("invalid export interval %v: must not be negative", c.ExportInterval))
	}
	return combine(errs)
}

func appendMissingFile(errs []string, what, path string) []string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return append(errs, fmt.Sprintf("%s file does not exist: %s", what, path))
	}
	return errs
}

func combine(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
