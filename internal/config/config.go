package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Receipt uploads
	ReceiptsDir     string
	MaxReceiptBytes int64

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Credentials
	RankingToken string // bearer token guarding the calculate endpoint
	JWTSecret    string // HS256 secret for user identity tokens

	// Gemini insights
	GeminiAPIKey string
	GeminiModel  string

	// Google Sheets leaderboard export
	SheetsSpreadsheetID   string
	SheetsName            string
	SheetsCredentialsFile string

	// Workers
	RecurringInterval time.Duration

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/risparmio.db"),

		ReceiptsDir:     getEnv("RECEIPTS_DIR", "./data/receipts"),
		MaxReceiptBytes: int64(getEnvInt("MAX_RECEIPT_BYTES", 5<<20)),

		// Empty means messaging is disabled; the API server then runs
		// without the insight pipeline.
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "risparmio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "insight_requests"),

		RankingToken: getEnv("RANKING_TOKEN", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsName:            getEnv("SHEETS_NAME", "Leaderboard"),
		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", 1*time.Hour),

		DefaultPageSize: getEnvInt("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 100),
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

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.ReceiptsDir == "" {
		errors = append(errors, "receipts directory cannot be empty")
	}
	if c.MaxReceiptBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max receipt size %d: must be at least 1 byte", c.MaxReceiptBytes))
	}

	// Validate AMQP URL if provided
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

	// The calculate endpoint refuses every invocation without a token,
	// so an empty token is a configuration error, not an open door.
	if c.RankingToken == "" {
		errors = append(errors, "ranking trigger token cannot be empty")
	}
	if c.JWTSecret == "" {
		errors = append(errors, "JWT secret cannot be empty")
	}

	// Validate sheets export configuration if enabled
	if c.SheetsSpreadsheetID != "" {
		if c.SheetsName == "" {
			errors = append(errors, "sheet name cannot be empty when a spreadsheet ID is provided")
		}
		if c.SheetsCredentialsFile == "" {
			errors = append(errors, "SHEETS_CREDENTIALS_FILE is required when a spreadsheet ID is provided")
		} else if _, err := os.Stat(c.SheetsCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("sheets credentials file does not exist: %s", c.SheetsCredentialsFile))
		}
	}

	// Validate worker configuration
	if c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	// Validate pagination
	if c.DefaultPageSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid default page size %d: must be at least 1", c.DefaultPageSize))
	}
	if c.MaxPageSize < c.DefaultPageSize {
		errors = append(errors, fmt.Sprintf("invalid max page size %d: must be at least the default page size %d", c.MaxPageSize, c.DefaultPageSize))
	}

	// Return combined errors
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
