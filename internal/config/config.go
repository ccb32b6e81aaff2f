// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, pipeline thresholds, checkout policy, and reply templates.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/sliceutil"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Admin takeover: LINE user IDs allowed to pause the bot with admin commands
	AdminUserIDs []string

	// StoreName fills the {store_name} template placeholder
	StoreName string

	// LLM Configuration
	OpenAIAPIKey string // OpenAI API key for intent fallback and KB answers
	GeminiAPIKey string // Gemini API key (alternative LLM provider)

	// LLM Model Configuration (optional, defaults apply if empty)
	OpenAIModel string
	GeminiModel string

	// LLM Provider Configuration
	LLMPrimaryProvider  string // "openai" or "gemini" (default: "openai")
	LLMFallbackProvider string // "openai" or "gemini" (default: "gemini")

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir          string        // Data directory for SQLite database
	MessageRetention time.Duration // Conversation rows older than this are deleted (default: 720h)

	// Catalog Importer Configuration
	CatalogURL             string        // Storefront URL to import products from (empty = disabled)
	CatalogRefreshInterval time.Duration // How often to re-import the catalog
	CatalogTimeout         time.Duration // HTTP timeout for catalog fetches
	CatalogMaxRetries      int

	// Media / Export Storage (Cloudflare R2, optional)
	R2Endpoint    string
	R2AccessKeyID string
	R2SecretKey   string
	R2BucketName  string

	// Observability
	BetterStackToken    string
	BetterStackEndpoint string
	SentryToken         string
	SentryHost          string
	SentryEnvironment   string

	// Bot Configuration (embedded)
	Bot BotConfig

	// Checkout Configuration (embedded)
	Checkout CheckoutPolicy

	// Reply Templates (embedded)
	Templates Templates
}

// Load reads configuration from environment variables.
// The caller is expected to load any .env file beforehand (cmd/server does).
func Load() (*Config, error) {
	cfg := &Config{
		// LINE Bot Configuration
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		AdminUserIDs: sliceutil.Deduplicate(splitAndTrim(getEnv("ADMIN_USER_IDS", ""))),

		StoreName: getEnv("STORE_NAME", "ShopChat"),

		// LLM Configuration
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		OpenAIModel: getEnv("OPENAI_MODEL", ""),
		GeminiModel: getEnv("GEMINI_MODEL", ""),

		LLMPrimaryProvider:  getEnv("LLM_PRIMARY_PROVIDER", "openai"),
		LLMFallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", "gemini"),

		// Metrics Authentication
		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Server Configuration
		Port:            getEnv("PORT", "10000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Data Configuration
		DataDir:          getEnv("DATA_DIR", getDefaultDataDir()),
		MessageRetention: getDurationEnv("MESSAGE_RETENTION", 720*time.Hour),

		// Catalog Importer Configuration
		CatalogURL:             getEnv("CATALOG_URL", ""),
		CatalogRefreshInterval: getDurationEnv("CATALOG_REFRESH_INTERVAL", 6*time.Hour),
		CatalogTimeout:         getDurationEnv("CATALOG_TIMEOUT", 30*time.Second),
		CatalogMaxRetries:      getIntEnv("CATALOG_MAX_RETRIES", 3),

		// Media / Export Storage
		R2Endpoint:    getEnv("R2_ENDPOINT", ""),
		R2AccessKeyID: getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretKey:   getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:  getEnv("R2_BUCKET_NAME", ""),

		// Observability
		BetterStackToken:    getEnv("BETTERSTACK_TOKEN", ""),
		BetterStackEndpoint: getEnv("BETTERSTACK_ENDPOINT", ""),
		SentryToken:         getEnv("SENTRY_TOKEN", ""),
		SentryHost:          getEnv("SENTRY_HOST", "errors.betterstack.com"),
		SentryEnvironment:   getEnv("SENTRY_ENVIRONMENT", "production"),

		Bot:       LoadBotConfig(),
		Checkout:  LoadCheckoutPolicy(),
		Templates: LoadTemplates(),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.MessageRetention <= 0 {
		errs = append(errs, fmt.Errorf("MESSAGE_RETENTION must be positive, got %v", c.MessageRetention))
	}
	if c.CatalogTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CATALOG_TIMEOUT must be positive, got %v", c.CatalogTimeout))
	}
	if c.CatalogMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("CATALOG_MAX_RETRIES cannot be negative, got %d", c.CatalogMaxRetries))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}
	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("checkout policy: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "shopchat.db")
}

// HasLLMProvider returns true if at least one LLM provider is configured.
func (c *Config) HasLLMProvider() bool {
	return c.OpenAIAPIKey != "" || c.GeminiAPIKey != ""
}

// HasMediaStore returns true if R2 credentials are fully configured.
func (c *Config) HasMediaStore() bool {
	return c.R2Endpoint != "" && c.R2AccessKeyID != "" && c.R2SecretKey != "" && c.R2BucketName != ""
}

// IsAdmin reports whether userID belongs to the configured admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// splitAndTrim splits a comma-separated list, dropping empty entries.
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
