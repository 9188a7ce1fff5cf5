package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

// FileEnv names the variable pointing at an optional TOML config file.
const FileEnv = "COFRINHO_CONFIG_FILE"

type Config struct {
	// HTTP Server
	Port               string `toml:"port"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`

	// Backend selection: memory, sqlite or mongo
	DataBackend string `toml:"data_backend"`

	// SQLite
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// MongoDB
	MongoURI          string `toml:"mongo_uri"`
	MongoDatabase     string `toml:"mongo_database"`
	MongoTransactions bool   `toml:"mongo_transactions"`

	// AMQP, optional
	AMQPURL              string `toml:"amqp_url"`
	AMQPExchange         string `toml:"amqp_exchange"`
	AMQPSyncQueue        string `toml:"amqp_sync_queue"`
	AMQPDiagnosticsQueue string `toml:"amqp_diagnostics_queue"`

	// Google Sheets ledger mirror, used by the worker
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleSheetName          string `toml:"google_sheet_name"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`
	GoogleServiceAccountJSON string `toml:"-"`

	// Auth
	AuthJWTSecret string `toml:"-"`
	AuthJWTIssuer string `toml:"auth_jwt_issuer"`

	// Gamification
	SavingsGoal float64 `toml:"savings_goal"`
	Timezone    string  `toml:"timezone"`

	// Caching and diagnostics
	SummaryCacheTTL    time.Duration `toml:"summary_cache_ttl"`
	SummaryCacheSize   int           `toml:"summary_cache_size"`
	DiagnosticsHistory int           `toml:"diagnostics_history"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                 "8080",
		RateLimitPerMinute:   120,
		DataBackend:          "memory",
		SQLiteDBPath:         "./data/cofrinho.db",
		MongoDatabase:        "cofrinho",
		AMQPExchange:         "cofrinho",
		AMQPSyncQueue:        "ledger_sync",
		AMQPDiagnosticsQueue: "diagnostics",
		GoogleSheetName:      "Lancamentos",
		AuthJWTIssuer:        "",
		SavingsGoal:          10000,
		Timezone:             "America/Sao_Paulo",
		SummaryCacheTTL:      5 * time.Minute,
		SummaryCacheSize:     1000,
		DiagnosticsHistory:   200,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by COFRINHO_CONFIG_FILE, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MongoTransactions = getEnvBool("MONGO_TRANSACTIONS", cfg.MongoTransactions)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPSyncQueue = getEnv("AMQP_SYNC_QUEUE", cfg.AMQPSyncQueue)
	cfg.AMQPDiagnosticsQueue = getEnv("AMQP_DIAGNOSTICS_QUEUE", cfg.AMQPDiagnosticsQueue)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", cfg.GoogleServiceAccountFile)
	cfg.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", cfg.GoogleServiceAccountJSON)

	cfg.AuthJWTSecret = getEnv("AUTH_JWT_SECRET", cfg.AuthJWTSecret)
	cfg.AuthJWTIssuer = getEnv("AUTH_JWT_ISSUER", cfg.AuthJWTIssuer)

	cfg.SavingsGoal = getEnvFloat("SAVINGS_GOAL", cfg.SavingsGoal)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.SummaryCacheTTL = getEnvDuration("SUMMARY_CACHE_TTL", cfg.SummaryCacheTTL)
	cfg.SummaryCacheSize = getEnvInt("SUMMARY_CACHE_SIZE", cfg.SummaryCacheSize)
	cfg.DiagnosticsHistory = getEnvInt("DIAGNOSTICS_HISTORY", cfg.DiagnosticsHistory)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	return cfg, nil
}

// Location resolves Timezone. Validate reports an unknown zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite", "mongo"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DataBackend == "mongo" {
		if c.MongoURI == "" {
			errors = append(errors, "MONGO_URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI '%s': scheme must be 'mongodb' or 'mongodb+srv'", c.MongoURI))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "MongoDB database name cannot be empty when using mongo backend")
		}
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
		if c.AMQPSyncQueue == "" || c.AMQPDiagnosticsQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.SavingsGoal <= 0 {
		errors = append(errors, fmt.Sprintf("invalid savings goal %v: must be positive", c.SavingsGoal))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}
	if c.SummaryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache ttl %v: must not be negative", c.SummaryCacheTTL))
	}
	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateServer runs Validate plus the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.AuthJWTSecret) < 16 {
		return fmt.Errorf("configuration validation failed:\n- AUTH_JWT_SECRET must be set and at least 16 characters long")
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
