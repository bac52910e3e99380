package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/bobmcallan/vire-chat/internal/interfaces"
	"github.com/bobmcallan/vire-chat/internal/storage/surrealdb"
)

// App holds all initialized services, clients, and configuration. It is the
// shared core used by cmd/vire-server: user/auth storage plus the chat job
// orchestration core.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	ChatCore    *ChatCore
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, logging, storage, and the chat job
// orchestration core. configPath may be empty, in which case the default
// resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	// Get binary directory for self-contained operation
	binDir := getBinaryDir()

	// Load configuration - check provided path, VIRE_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("VIRE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "vire-service.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/vire-service.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to binary directory
	if config.Storage.DataPath != "" && !filepath.IsAbs(config.Storage.DataPath) {
		config.Storage.DataPath = filepath.Join(binDir, config.Storage.DataPath)
	}

	// Resolve relative log file path to binary directory
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	// Initialize logger
	logger := common.NewLoggerFromConfig(config.Logging)

	// Initialize storage
	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Check schema version — purge derived data on mismatch
	ctx := context.Background()
	checkSchemaVersion(ctx, storageManager, logger)

	// Dev mode: purge reports on build change (so code changes are immediately visible)
	checkDevBuildChange(ctx, storageManager, config, logger)

	// Resolve the Gemini API key: config first, falling back to whatever an
	// operator stored via the internal key-value store at runtime.
	internalStore := storageManager.InternalStore()
	geminiKey, err := common.ResolveAPIKey(ctx, internalStore, "gemini_api_key", config.Clients.Gemini.APIKey)
	if err != nil {
		logger.Warn().Msg("Gemini API key not configured - chat will be unavailable until one is set")
	}

	// Initialize chat orchestration core
	var chatCore *ChatCore
	if config.Chat.Enabled {
		chatCore, err = newChatCore(ctx, config, storageManager.DB(), logger, geminiKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize chat core — chat endpoints will be unavailable")
			chatCore = nil
		} else if chatCore.Jobs != nil {
			if recovered, rerr := chatCore.Jobs.RecoverRunning(ctx, chatCore.Lanes, chatCore.Pool, config.Chat.ClaimTTL()); rerr != nil {
				logger.Warn().Err(rerr).Msg("Chat job recovery scan failed")
			} else if recovered > 0 {
				logger.Info().Int("recovered", recovered).Msg("Chat job recovery re-enqueued orphaned queued/processing jobs")
			}
		}
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		ChatCore:    chatCore,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App. Shutdown order: stop the
// chat worker pool (so no job half-completes against a closing store), then
// close storage.
func (a *App) Close() {
	if a.ChatCore != nil && a.ChatCore.Pool != nil {
		a.ChatCore.Pool.Stop()
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
