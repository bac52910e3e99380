// Package common provides shared utilities for Vire
package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/vire-chat/internal/interfaces"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Vire
type Config struct {
	Environment     string        `toml:"environment"`
	Portfolios      []string      `toml:"portfolios"`
	DisplayCurrency string        `toml:"display_currency"` // Display currency for portfolio totals ("AUD" or "USD", default "AUD")
	Server          ServerConfig  `toml:"server"`
	Storage         StorageConfig `toml:"storage"`
	Clients         ClientsConfig `toml:"clients"`
	Logging         LoggingConfig `toml:"logging"`
	Auth            AuthConfig    `toml:"auth"`
	Chat            ChatConfig    `toml:"chat"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DefaultPortfolio returns the first portfolio in the list (the default), or empty string.
func (c *Config) DefaultPortfolio() string {
	if len(c.Portfolios) > 0 {
		return c.Portfolios[0]
	}
	return ""
}

// StorageConfig holds storage configuration. Address/Username/Password/
// Namespace/Database/DataPath configure the SurrealDB-backed manager;
// Internal/User/Market are legacy BadgerHold area paths kept for the
// one-time migration path in migrate.go.
type StorageConfig struct {
	Address   string     `toml:"address"`
	Username  string     `toml:"username"`
	Password  string     `toml:"password"`
	Namespace string     `toml:"namespace"`
	Database  string     `toml:"database"`
	DataPath  string     `toml:"data_path"`
	Internal  AreaConfig `toml:"internal"` // User accounts + config KV (legacy BadgerHold)
	User      AreaConfig `toml:"user"`     // User domain data (legacy BadgerHold)
	Market    AreaConfig `toml:"market"`   // Market data + signals (legacy file-based JSON)
}

// AreaConfig holds path configuration for a storage area.
type AreaConfig struct {
	Path string `toml:"path"`
}

// FileConfig is kept for backward compatibility during migration detection.
type FileConfig struct {
	Path     string `toml:"path"`
	Versions int    `toml:"versions"`
}

// GCSConfig holds Google Cloud Storage configuration (future Phase 2)
type GCSConfig struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`           // Optional key prefix within bucket
	CredentialsFile string `toml:"credentials_file"` // Path to service account JSON (optional if using ADC)
}

// S3Config holds AWS S3 configuration (future Phase 2)
type S3Config struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`   // Optional key prefix within bucket
	Region    string `toml:"region"`   // AWS region (e.g., "us-east-1")
	Endpoint  string `toml:"endpoint"` // Custom endpoint for S3-compatible stores (MinIO, R2)
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxURLs        int    `toml:"max_urls"`
	MaxContentSize string `toml:"max_content_size"`
}

// AuthConfig holds authentication configuration for OAuth and JWT.
type AuthConfig struct {
	JWTSecret   string        `toml:"jwt_secret"`
	TokenExpiry string        `toml:"token_expiry"` // duration string, default "24h"
	Google      OAuthProvider `toml:"google"`
	GitHub      OAuthProvider `toml:"github"`
}

// OAuthProvider holds OAuth client credentials for an external provider.
type OAuthProvider struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level" mapstructure:"level"`
	Format     string   `toml:"format" mapstructure:"format"`
	Outputs    []string `toml:"outputs" mapstructure:"outputs"`
	FilePath   string   `toml:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" mapstructure:"max_backups"`
}

// ChatConfig holds tunables for the chat job orchestration core: lane
// queueing, worker concurrency, claim TTLs, and tool-call budgets.
type ChatConfig struct {
	Enabled           bool   `toml:"enabled"`
	QueueBackend      string `toml:"queue_backend"`        // "surreal" or "inline"
	LaneStoreDSN      string `toml:"lane_store_dsn"`        // SurrealDB connection string; loaded but not read by the lane store, which uses the main storage connection
	WorkerPoolSize    int    `toml:"worker_pool_size"`
	JobClaimTTLSec    int    `toml:"job_claim_ttl_sec"`
	MaxToolRounds     int    `toml:"max_tool_rounds"`
	MaxToolCalls      int    `toml:"max_tool_calls"`
	SignalTTLSec      int    `toml:"signal_ttl_sec"`
	SignalCapacity    int    `toml:"signal_capacity"`
	RateLimitPerMin   int    `toml:"rate_limit_per_min"` // per-actor request budget, 0 disables
	AllowInlineInProd bool   `toml:"allow_inline_fallback_in_prod"`
	LaneMaxQueue      int    `toml:"lane_max_queue"`    // per-lane queued-job cap enforced at ingress
	LaneDebounceMS    int    `toml:"lane_debounce_ms"`  // debounce window for duplicate ingress fingerprints
	JobRoot           string `toml:"job_root"`          // base directory for per-job directories; relative to Storage.DataPath when not absolute
	RecoveryRescanSec int    `toml:"recovery_rescan_sec"` // interval between periodic crash-recovery scans, in addition to the startup scan; 0 means the 300s default, negative disables the periodic scan
}

// LaneDebounce returns LaneDebounceMS as a Duration, defaulting to 500ms.
func (c *ChatConfig) LaneDebounce() time.Duration {
	if c.LaneDebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.LaneDebounceMS) * time.Millisecond
}

// MaxQueue returns LaneMaxQueue, defaulting to 6.
func (c *ChatConfig) MaxQueue() int {
	if c.LaneMaxQueue <= 0 {
		return 6
	}
	return c.LaneMaxQueue
}

// ClaimTTL returns JobClaimTTLSec as a Duration, defaulting to 600s.
func (c *ChatConfig) ClaimTTL() time.Duration {
	if c.JobClaimTTLSec <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.JobClaimTTLSec) * time.Second
}

// SignalTTL returns SignalTTLSec as a Duration, defaulting to 1800s.
func (c *ChatConfig) SignalTTL() time.Duration {
	if c.SignalTTLSec <= 0 {
		return 1800 * time.Second
	}
	return time.Duration(c.SignalTTLSec) * time.Second
}

// RecoveryRescanInterval returns RecoveryRescanSec as a Duration, defaulting
// to 300s. A negative value disables the periodic scan (the startup scan
// still runs).
func (c *ChatConfig) RecoveryRescanInterval() time.Duration {
	if c.RecoveryRescanSec < 0 {
		return 0
	}
	if c.RecoveryRescanSec == 0 {
		return 300 * time.Second
	}
	return time.Duration(c.RecoveryRescanSec) * time.Second
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:     "development",
		DisplayCurrency: "AUD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "vire",
			Database:  "vire",
			DataPath:  "data/market",
			Internal:  AreaConfig{Path: "data/internal"},
			User:      AreaConfig{Path: "data/user"},
			Market:    AreaConfig{Path: "data/market"},
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:          "gemini-2.0-flash",
				MaxURLs:        20,
				MaxContentSize: "34MB",
			},
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/vire.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Chat: ChatConfig{
			Enabled:        false,
			QueueBackend:   "inline",
			WorkerPoolSize: 4,
			JobClaimTTLSec: 600,
			MaxToolRounds:  5,
			MaxToolCalls:   12,
			SignalTTLSec:   1800,
			SignalCapacity: 4096,
			LaneMaxQueue:   6,
			LaneDebounceMS: 500,
			JobRoot:        "chat-jobs",
			RecoveryRescanSec: 300,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)
	applyChatEnvOverrides(config)

	// Validate display currency
	validateDisplayCurrency(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("APP_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("VIRE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("VIRE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("VIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("VIRE_DATA_PATH"); path != "" {
		config.Storage.Internal.Path = filepath.Join(path, "internal")
		config.Storage.User.Path = filepath.Join(path, "user")
		config.Storage.Market.Path = filepath.Join(path, "market")
	}

	if dc := os.Getenv("VIRE_DISPLAY_CURRENCY"); dc != "" {
		config.DisplayCurrency = strings.ToUpper(dc)
	}

	// Gemini API key, in the same precedence order as ResolveAPIKey
	for _, name := range []string{"GEMINI_API_KEY", "VIRE_GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Clients.Gemini.APIKey = v
			break
		}
	}

	// Auth overrides
	if v := os.Getenv("VIRE_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("VIRE_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
	if v := os.Getenv("VIRE_AUTH_GOOGLE_CLIENT_ID"); v != "" {
		config.Auth.Google.ClientID = v
	}
	if v := os.Getenv("VIRE_AUTH_GOOGLE_CLIENT_SECRET"); v != "" {
		config.Auth.Google.ClientSecret = v
	}
	if v := os.Getenv("VIRE_AUTH_GITHUB_CLIENT_ID"); v != "" {
		config.Auth.GitHub.ClientID = v
	}
	if v := os.Getenv("VIRE_AUTH_GITHUB_CLIENT_SECRET"); v != "" {
		config.Auth.GitHub.ClientSecret = v
	}

	if dp := os.Getenv("VIRE_DEFAULT_PORTFOLIO"); dp != "" {
		// Set as first portfolio (default), preserving any others
		if len(config.Portfolios) == 0 {
			config.Portfolios = []string{dp}
		} else if config.Portfolios[0] != dp {
			// Remove dp if it exists elsewhere, then prepend
			filtered := []string{dp}
			for _, p := range config.Portfolios {
				if p != dp {
					filtered = append(filtered, p)
				}
			}
			config.Portfolios = filtered
		}
	}
}

// applyChatEnvOverrides applies environment variable overrides to the chat
// orchestration config.
func applyChatEnvOverrides(config *Config) {
	if v := os.Getenv("CHAT_ENABLED"); v != "" {
		config.Chat.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("JOB_QUEUE_BACKEND"); v != "" {
		config.Chat.QueueBackend = v
	}
	if v := os.Getenv("CHAT_LANE_STORE_DSN"); v != "" {
		config.Chat.LaneStoreDSN = v
	}
	if v := os.Getenv("CHAT_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("CHAT_JOB_CLAIM_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.JobClaimTTLSec = n
		}
	}
	if v := os.Getenv("CHAT_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.MaxToolRounds = n
		}
	}
	if v := os.Getenv("CHAT_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.MaxToolCalls = n
		}
	}
	if v := os.Getenv("CHAT_STREAM_SIGNAL_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.SignalTTLSec = n
		}
	}
	if v := os.Getenv("CHAT_STREAM_SIGNAL_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.SignalCapacity = n
		}
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.RateLimitPerMin = n
		}
	}
	if v := os.Getenv("ALLOW_INLINE_FALLBACK_IN_PROD"); v != "" {
		config.Chat.AllowInlineInProd = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CHAT_LANE_MAX_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.LaneMaxQueue = n
		}
	}
	if v := os.Getenv("CHAT_LANE_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.LaneDebounceMS = n
		}
	}
	if v := os.Getenv("CHAT_JOB_ROOT"); v != "" {
		config.Chat.JobRoot = v
	}
	if v := os.Getenv("CHAT_RECOVERY_RESCAN_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.RecoveryRescanSec = n
		}
	}

	// A distributed lane store is required in production unless explicitly
	// overridden — an inline store silently loses lane state on restart
	// and shares nothing across replicas.
	if config.IsProduction() && config.Chat.QueueBackend == "inline" && !config.Chat.AllowInlineInProd {
		config.Chat.QueueBackend = "surreal"
	}
}

// ValidateRequired returns the names of required fields that are missing
// or left at an unsafe default. Used by operators to check a config file
// before deploying to production.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Clients.Gemini.APIKey == "" {
		missing = append(missing, "clients.gemini.api_key")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		missing = append(missing, "auth.jwt_secret")
	}
	if c.Auth.Google.ClientID == "" {
		missing = append(missing, "auth.google.client_id")
	}
	if c.Auth.Google.ClientSecret == "" {
		missing = append(missing, "auth.google.client_secret")
	}
	if c.Auth.GitHub.ClientID == "" {
		missing = append(missing, "auth.github.client_id")
	}
	if c.Auth.GitHub.ClientSecret == "" {
		missing = append(missing, "auth.github.client_secret")
	}
	return missing
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveDefaultPortfolio resolves the default portfolio name.
// Priority: InternalStore (runtime) > VIRE_DEFAULT_PORTFOLIO env > first entry in config portfolios list > empty string.
func ResolveDefaultPortfolio(ctx context.Context, store interfaces.InternalStore, configDefault string) string {
	// InternalStore system KV (highest priority — set at runtime via set_default_portfolio tool)
	if store != nil {
		if val, err := store.GetSystemKV(ctx, "default_portfolio"); err == nil && val != "" {
			return val
		}
	}

	// Environment variable
	if val := os.Getenv("VIRE_DEFAULT_PORTFOLIO"); val != "" {
		return val
	}

	// Config file fallback (first entry in portfolios list)
	return configDefault
}

// ResolveAPIKey resolves an API key from environment, InternalStore, or fallback
func ResolveAPIKey(ctx context.Context, store interfaces.InternalStore, name string, fallback string) (string, error) {
	// Environment variable mapping
	keyToEnvMapping := map[string][]string{
		"gemini_api_key": {"GEMINI_API_KEY", "VIRE_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	// Check environment variables first (highest priority)
	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try InternalStore system KV (medium priority)
	if store != nil {
		apiKey, err := store.GetSystemKV(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback (lowest priority)
	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or store", name)
}

// validateDisplayCurrency ensures DisplayCurrency is "AUD" or "USD", defaulting to "AUD".
func validateDisplayCurrency(config *Config) {
	dc := strings.ToUpper(config.DisplayCurrency)
	if dc != "AUD" && dc != "USD" {
		dc = "AUD"
	}
	config.DisplayCurrency = dc
}
