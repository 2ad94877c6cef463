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

	"github.com/robfig/cron/v3"
)

// Backend names accepted by DATA_BACKEND and IMPORT_SOURCE_BACKEND.
const (
	BackendMemory = "memory"
	BackendCSV    = "csv"
	BackendXLSX   = "xlsx"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

var (
	dataBackends   = []string{BackendMemory, BackendCSV, BackendXLSX, BackendSheets, BackendSQLite}
	importBackends = []string{BackendCSV, BackendXLSX, BackendSheets}
)

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Sources
	DataBackend    string
	DataDir        string
	XLSXPath       string
	CatalogFile    string
	FetchTimeout   time.Duration
	SourceCacheTTL time.Duration

	// Staging database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleActualsRange  string
	GoogleBudgetRange   string

	// Import worker
	ImportSchedule      string
	ImportSourceBackend string
	WorkerMetricsAddr   string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8081"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:    getEnv("DATA_BACKEND", BackendMemory),
		DataDir:        getEnv("DATA_DIR", "./data"),
		XLSXPath:       getEnv("XLSX_PATH", "./data/finance.xlsx"),
		CatalogFile:    getEnv("CATALOG_FILE", ""),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		SourceCacheTTL: getEnvDuration("SOURCE_CACHE_TTL", 5*time.Minute),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/findash.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "findash"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "import_rows"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleActualsRange:  getEnv("GOOGLE_ACTUALS_RANGE", "Actuals!A:ZZ"),
		GoogleBudgetRange:   getEnv("GOOGLE_BUDGET_RANGE", "Budget!A:ZZ"),

		ImportSchedule:      getEnv("IMPORT_SCHEDULE", "@every 15m"),
		ImportSourceBackend: getEnv("IMPORT_SOURCE_BACKEND", BackendCSV),
		WorkerMetricsAddr:   getEnv("WORKER_METRICS_ADDR", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}
}

// AMQPEnabled reports whether an import queue is configured.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(dataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, dataBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		errors = append(errors, c.validateSQLite()...)
	case BackendCSV:
		if c.DataDir == "" {
			errors = append(errors, "DATA_DIR cannot be empty when using csv backend")
		}
	case BackendXLSX:
		if c.XLSXPath == "" {
			errors = append(errors, "XLSX_PATH cannot be empty when using xlsx backend")
		}
	case BackendSheets:
		errors = append(errors, c.validateSheets()...)
	}

	if c.CatalogFile != "" {
		if _, err := os.Stat(c.CatalogFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("catalog file does not exist: %s", c.CatalogFile))
		}
	}

	if c.AMQPEnabled() {
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

	if c.FetchTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 100ms", c.FetchTimeout))
	}
	if c.SourceCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid source cache ttl %v: must not be negative", c.SourceCacheTTL))
	}
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the import worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if !slices.Contains(importBackends, c.ImportSourceBackend) {
		errors = append(errors, fmt.Sprintf("invalid import source backend '%s': must be one of %v", c.ImportSourceBackend, importBackends))
	}
	if c.ImportSourceBackend == BackendSheets {
		errors = append(errors, c.validateSheets()...)
	}
	if c.ImportSchedule != "" {
		if _, err := cron.ParseStandard(c.ImportSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid import schedule '%s': %v", c.ImportSchedule, err))
		}
	}
	errors = append(errors, c.validateSQLite()...)

	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSQLite() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty when using sqlite backend"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
			}
		}
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}
	if c.GoogleActualsRange == "" || c.GoogleBudgetRange == "" {
		errors = append(errors, "GOOGLE_ACTUALS_RANGE and GOOGLE_BUDGET_RANGE cannot be empty when using sheets backend")
	}
	return errors
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
