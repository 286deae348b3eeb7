package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"mysokha/internal/store"
)

// DefaultProjectID is used when STORE_CONFIG is absent or has no projectId.
const DefaultProjectID = "mysokha"

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	SecureCookies      bool

	LogLevel string

	// Store
	DataBackend  string
	SQLiteDBPath string
	DraftsDir    string
	SeedFile     string
	StoreConfig  string
	AppID        string
	PollInterval time.Duration

	// Identity
	InitialAuthToken string
	IdentitySecret   string
	SessionTTL       time.Duration

	Timezone string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string

	// Reports
	ReportFontPath   string
	ReportFontFamily string
	CurrencySymbol   string

	// Google Sheets publishing (optional)
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		SecureCookies:      getEnvBool("SECURE_COOKIES", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/mysokha.db"),
		DraftsDir:    getEnv("DRAFTS_DIR", "./data/drafts"),
		SeedFile:     getEnv("SEED_FILE", ""),
		StoreConfig:  getEnv("STORE_CONFIG", ""),
		AppID:        getEnv("APP_ID", ""),
		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),

		InitialAuthToken: getEnv("INITIAL_AUTH_TOKEN", ""),
		IdentitySecret:   getEnv("IDENTITY_SECRET", ""),
		SessionTTL:       getEnvDuration("SESSION_TTL", 24*time.Hour),

		Timezone: getEnv("TIMEZONE", "UTC"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "mysokha.changes"),

		ReportFontPath:   getEnv("REPORT_FONT_PATH", ""),
		ReportFontFamily: getEnv("REPORT_FONT_FAMILY", "KantumruyPro"),
		CurrencySymbol:   getEnv("CURRENCY_SYMBOL", "៛"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}

	return cfg
}

// storeConfig is the subset of the injected store configuration we read.
type storeConfig struct {
	ProjectID string `json:"projectId"`
}

// ProjectID reads projectId from STORE_CONFIG, falling back to the default.
func (c *Config) ProjectID() string {
	if c.StoreConfig == "" {
		return DefaultProjectID
	}
	var sc storeConfig
	if err := json.Unmarshal([]byte(c.StoreConfig), &sc); err != nil || strings.TrimSpace(sc.ProjectID) == "" {
		return DefaultProjectID
	}
	return sc.ProjectID
}

// ResolvedAppID is the sanitized application id that scopes every store path.
func (c *Config) ResolvedAppID() string {
	if c.AppID != "" {
		return store.SanitizeAppID(c.AppID)
	}
	return store.SanitizeAppID(c.ProjectID())
}

// Location loads the configured timezone. Validate reports bad names, so
// callers that validated first can ignore the fallback.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SheetsEnabled reports whether report publishing to Google Sheets is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
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

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
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

	if c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); err != nil {
			errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
		}
	}

	if c.StoreConfig != "" {
		var sc storeConfig
		if err := json.Unmarshal([]byte(c.StoreConfig), &sc); err != nil {
			errors = append(errors, fmt.Sprintf("invalid STORE_CONFIG: %v", err))
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.InitialAuthToken != "" && c.IdentitySecret == "" {
		errors = append(errors, "IDENTITY_SECRET is required when INITIAL_AUTH_TOKEN is set")
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.PollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 1 second", c.PollInterval))
	} else if c.PollInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at most 1 hour", c.PollInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
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
	}

	if c.ReportFontPath != "" {
		if _, err := os.Stat(c.ReportFontPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("report font file does not exist: %s", c.ReportFontPath))
		}
	}

	// Google Sheets publishing needs service account credentials
	if c.SheetsEnabled() {
		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided when GOOGLE_SPREADSHEET_ID is set")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
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
