// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Refresh modes for the nightly portfolio sweep.
const (
	// RefreshModeResave re-persists every portfolio entry unchanged.
	RefreshModeResave = "resave"
	// RefreshModeRefetch pulls fresh fundamentals for every tracked symbol.
	RefreshModeRefetch = "refetch"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the SQLite databases and log file (always absolute)
	Port     int
	LogLevel string
	LogFile  string // Optional JSON log sink, relative paths resolve against DataDir
	// Optional JSON sink for error-level lines only, resolved like LogFile
	LogErrorFile string
	DevMode  bool

	AlphaVantageAPIKey  string
	AlphaVantageBaseURL string

	RefreshSchedule string // cron spec, 5 fields
	RefreshMode     string

	SeedUsers []string // Usernames created at startup if missing

	Backup *BackupConfig
}

// BackupConfig holds the S3-compatible snapshot upload settings.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // Custom endpoint for R2/MinIO; empty means AWS
	Schedule string

	// Static credentials; when empty the default AWS credential chain is used
	AccessKeyID     string
	SecretAccessKey string

	RetentionDays int // 0 keeps every backup
}

// Enabled reports whether backups should be scheduled.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRACKER_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("PORT", 3000),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFile:             getEnv("LOG_FILE", ""),
		LogErrorFile:        getEnv("LOG_ERROR_FILE", ""),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		AlphaVantageAPIKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
		AlphaVantageBaseURL: getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
		RefreshSchedule:     getEnv("REFRESH_SCHEDULE", "0 0 * * *"),
		RefreshMode:         getEnv("REFRESH_MODE", RefreshModeResave),
		SeedUsers:           getEnvAsList("SEED_USERS"),
		Backup: &BackupConfig{
			Bucket:   getEnv("BACKUP_S3_BUCKET", ""),
			Prefix:   getEnv("BACKUP_S3_PREFIX", "tracker-backups"),
			Region:   getEnv("BACKUP_S3_REGION", "auto"),
			Endpoint: getEnv("BACKUP_S3_ENDPOINT", ""),
			Schedule: getEnv("BACKUP_SCHEDULE", "30 0 * * *"),

			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	cfg.LogFile = resolveAgainst(absDataDir, cfg.LogFile)
	cfg.LogErrorFile = resolveAgainst(absDataDir, cfg.LogErrorFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.RefreshMode {
	case RefreshModeResave, RefreshModeRefetch:
	default:
		return fmt.Errorf("invalid refresh mode %q (want %q or %q)", c.RefreshMode, RefreshModeResave, RefreshModeRefetch)
	}

	if c.RefreshSchedule == "" {
		return fmt.Errorf("refresh schedule must not be empty")
	}

	if c.Backup.Enabled() && c.Backup.RetentionDays < 0 {
		return fmt.Errorf("invalid backup retention: %d days", c.Backup.RetentionDays)
	}

	// Note: the API key is optional so the app can run against a cache-only dataset.
	return nil
}

// PortfolioDBPath returns the path of the portfolio database file.
func (c *Config) PortfolioDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// ClientDataDBPath returns the path of the fundamentals cache database file.
func (c *Config) ClientDataDBPath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// resolveAgainst makes a relative path absolute under dir. Empty stays empty.
func resolveAgainst(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// getEnvAsList splits a comma-separated variable, dropping blank items.
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
