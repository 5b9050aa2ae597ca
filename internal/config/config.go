// Package config loads process-level configuration from environment
// variables (and an optional .env file). Tunables that change at runtime
// without a restart -- score thresholds, cadences, feature flags -- live
// in internal/paramstore instead; this package only covers what is needed
// to bring the process up: data directory, credentials, log level, and
// the control-surface listen address.
//
// Configuration loading order:
// 1. Load from .env file (if present).
// 2. Read environment variables, falling back to documented defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration resolved once at startup.
type Config struct {
	DataDir  string // base directory for all sqlite databases, always absolute
	LogLevel string // debug, info, warn, error
	DevMode  bool

	Port            int    // control-surface HTTP listen port
	InteractionsKey string // public key used to verify signed inbound interactions

	WebhookURL   string // chat-platform webhook URL
	WebhookToken string // bot-API token, used when interactive components are required

	LLMProvider string // "openai", "anthropic", ... selects the llm.Provider implementation
	LLMAPIKey   string

	AlphaVantageAPIKey string
	OpenFIGIAPIKey     string

	RealtimeFeedURL string // websocket URL for the push-based news-wire feed; empty disables it

	// KeywordCatalogOverrides is a comma-separated "tag:weight" list layered
	// on top of classifier.DefaultCatalog (file-overrides-catalog policy,
	// spec.md §4.F). Empty leaves the built-in catalog untouched.
	KeywordCatalogOverrides string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2Endpoint        string
}

// Load reads configuration from environment variables. dataDirOverride,
// if non-empty, takes priority over the CATALYST_DATA_DIR environment
// variable and the built-in default.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("CATALYST_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Port:            getEnvAsInt("CONTROL_PORT", 8090),
		InteractionsKey: getEnv("INTERACTIONS_PUBLIC_KEY", ""),

		WebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
		WebhookToken: getEnv("ALERT_BOT_TOKEN", ""),

		LLMProvider: getEnv("LLM_PROVIDER", "none"),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),

		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		OpenFIGIAPIKey:     getEnv("OPENFIGI_API_KEY", ""),

		RealtimeFeedURL: getEnv("REALTIME_FEED_URL", ""),

		KeywordCatalogOverrides: getEnv("KEYWORD_CATALOG_OVERRIDES", ""),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2Endpoint:        getEnv("R2_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the startup-mandatory fields: only CONTROL_PORT is
// checked. An empty InteractionsKey is not a validation error and does
// not stop startup with an exit code; internal/di then leaves the
// control surface unbuilt. Webhook/LLM credentials are optional too.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid CONTROL_PORT: %d", c.Port)
	}
	return nil
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
