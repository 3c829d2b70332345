// Package cmd provides the CLI commands for lodestar.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/config"
	"github.com/lodestar-dev/lodestar/internal/embed"
	"github.com/lodestar-dev/lodestar/internal/logging"
	"github.com/lodestar-dev/lodestar/internal/store"
	"github.com/lodestar-dev/lodestar/pkg/version"
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lodestar CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lodestar",
		Short: "Hybrid search over markdown documentation",
		Long: `Lodestar indexes markdown documentation into a local hybrid
(semantic + keyword) search index and serves it to AI assistants
over MCP.

Run 'lodestar index <path>' to build an index, then 'lodestar serve'
to expose it, or 'lodestar search <query>' to query from the shell.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("lodestar version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.lodestar/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newChunksCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	cleanup, err := logging.SetupDefault(true)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup

	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopLogging flushes and closes the debug log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openServices loads configuration, builds the embedding provider, and
// opens the store sized to the provider's vector width. The caller owns
// closing both the provider and the store.
func openServices(dir string) (*config.Config, embed.Provider, *store.Store, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := embed.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		_ = provider.Close()
		return nil, nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(store.Options{
		Path:        cfg.IndexPath(),
		TextBackend: cfg.Search.TextBackend,
		TextPath:    cfg.TextIndexPath(),
		Dimension:   provider.Dimensions(),
		Logger:      slog.Default(),
	})
	if err != nil {
		_ = provider.Close()
		return nil, nil, nil, err
	}

	return cfg, provider, st, nil
}

// openExistingStore opens the store without an embedding provider, for
// read-only commands. It refuses to create a fresh index.
func openExistingStore(dir string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}

	if !fileExists(cfg.IndexPath()) {
		return nil, nil, fmt.Errorf("no index found at %s\nRun 'lodestar index <path>' to create one", cfg.IndexPath())
	}

	st, err := store.Open(store.Options{
		Path:        cfg.IndexPath(),
		TextBackend: cfg.Search.TextBackend,
		TextPath:    cfg.TextIndexPath(),
		Logger:      slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}

	return cfg, st, nil
}
