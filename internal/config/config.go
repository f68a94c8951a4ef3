// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration sourced from the environment.
// Runtime tunables live in Settings (config.yaml); broker and notifier
// credentials may instead come from the encrypted secret store unless
// ForceEnvConfig is set.
type Config struct {
	DataDir        string // Base directory for databases and encrypted blobs (always absolute)
	Port           int
	LogLevel       string
	LogPretty      bool
	DevMode        bool
	EncryptionKey  string // Raw value of VANTAGE_ENCRYPTION_KEY, decoded by the secret store
	ForceEnvConfig bool   // Skip the encrypted store, use env credentials as-is

	// ExternalFeedURL enables the external market-data WebSocket source
	// when set
	ExternalFeedURL string

	Saxo     SaxoConfig
	Telegram TelegramConfig
	Backup   BackupConfig
}

// SaxoConfig holds OAuth application credentials for the broker gateway
type SaxoConfig struct {
	AppKey      string
	AppSecret   string
	Environment string // "SIM" or "LIVE"
	RedirectURI string
}

// TelegramConfig holds bot credentials for the notifier
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// BackupConfig holds S3-compatible storage credentials for off-site backups.
// Endpoint is derived from the account ID when left empty (R2 convention).
type BackupConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	RetentionDays   int
}

// Enabled reports whether enough credentials exist to attempt uploads
func (b BackupConfig) Enabled() bool {
	return b.AccessKeyID != "" && b.SecretAccessKey != "" && b.Bucket != ""
}

// EndpointURL resolves the storage endpoint, defaulting to the R2 form
func (b BackupConfig) EndpointURL() string {
	if b.Endpoint != "" {
		return b.Endpoint
	}
	if b.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", b.AccountID)
	}
	return ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("PORT", 8742),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		EncryptionKey:   getEnv("VANTAGE_ENCRYPTION_KEY", ""),
		ForceEnvConfig:  getEnvAsBool("FORCE_ENV_CONFIG", false),
		ExternalFeedURL: getEnv("EXTERNAL_FEED_URL", ""),
		Saxo: SaxoConfig{
			AppKey:      getEnv("SAXO_APP_KEY", ""),
			AppSecret:   getEnv("SAXO_APP_SECRET", ""),
			Environment: getEnv("SAXO_ENVIRONMENT", "SIM"),
			RedirectURI: getEnv("SAXO_REDIRECT_URI", "http://localhost:8742/api/auth/callback"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		Backup: BackupConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			Endpoint:        getEnv("R2_ENDPOINT", ""),
			RetentionDays:   getEnvAsInt("R2_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Saxo.Environment != "SIM" && c.Saxo.Environment != "LIVE" {
		return fmt.Errorf("SAXO_ENVIRONMENT must be SIM or LIVE, got %q", c.Saxo.Environment)
	}
	// Broker and notifier credentials are optional: the service runs in
	// research mode without them.
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
