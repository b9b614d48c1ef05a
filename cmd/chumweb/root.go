package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/chumweb/internal/config"
	"github.com/BadgerOps/chumweb/internal/obs"
	"github.com/BadgerOps/chumweb/internal/reporting"
	"github.com/BadgerOps/chumweb/internal/resolver"
	"github.com/BadgerOps/chumweb/internal/store"
)

var (
	// Global flags
	cfgPath   string
	dataDir   string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore    *store.Store
	globalResolver *resolver.Resolver
)

// initializeComponents opens the store and builds the resolver on top of
// the OBS client. It is idempotent.
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalResolver != nil {
		return nil
	}

	st, err := store.New(globalCfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st

	client := obs.NewClient(
		globalCfg.Upstream.BaseURL,
		globalCfg.Upstream.Timeout,
		globalCfg.Upstream.MaxMetadataBytes,
		logger,
	)

	res, err := resolver.New(client, globalStore, resolver.Options{
		ChumPackage: globalCfg.Upstream.ChumPackage,
		GUIPackage:  globalCfg.Upstream.GUIPackage,
		CatalogTTL:  globalCfg.Cache.CatalogTTL,
		LRUSize:     globalCfg.Cache.LRUSize,
		// repomd.xml and the primary list are two requests
		FetchTimeout: 2 * globalCfg.Upstream.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}
	globalResolver = res

	if err := reporting.Start(version, globalCfg.Sentry.DSN, globalCfg.Sentry.Environment); err != nil {
		logger.Warn("error reporting disabled", "error", err)
	} else if reporting.Enabled() {
		logger.Info("error reporting enabled", "environment", globalCfg.Sentry.Environment)
	}

	logger.Debug("components initialized", "db", globalCfg.DatabasePath(), "upstream", client.BaseURL())
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization.
// links talks to a running server unless --local is given and initializes
// on demand.
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
		"path":    true,
		"links":   true,
	}
	return skipInitCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalResolver != nil {
		globalResolver.Close()
	}
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
	globalResolver = nil
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chumweb",
		Short: "Download page and lookup service for the SailfishOS:Chum bootstrap packages",
		Long: `chumweb serves the SailfishOS:Chum download page. Users pick a SailfishOS
release and a device architecture and get links to the two packages that add
the Chum repository and its GUI client.

The lookups read the OBS repository tree directly: the list of releases comes
from the project index and the package links from each repository's metadata.
Resolved links are cached by metadata checksum in memory and in SQLite.`,
		Example: `  chumweb serve
  chumweb serve --listen 0.0.0.0:8080 --public-dir ./public
  chumweb repos
  chumweb links --sfos 4.5.0.16 --arch aarch64 --local
  chumweb warm --concurrency 8
  chumweb cache list`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			// Skip config loading for commands that don't need it
			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// Load config
			path := cfgPath
			if path == "" {
				var err error
				path, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if path != "" {
				var err error
				globalCfg, err = config.Load(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if dataDir != "" {
				globalCfg.Server.DataDir = dataDir
			}

			if !quiet {
				logger.Debug("config loaded", "path", path, "data_dir", globalCfg.Server.DataDir)
			}

			// Initialize components after config is loaded
			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			reporting.Flush(2 * time.Second)
			closeStore()
		},
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	// Add subcommands
	cmd.AddCommand(
		newServeCmd(),
		newReposCmd(),
		newLinksCmd(),
		newWarmCmd(),
		newCacheCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet && level < slog.LevelError {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute as in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
