package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/logging"
	"github.com/lodestar-dev/lodestar/internal/mcp"
	"github.com/lodestar-dev/lodestar/internal/search"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Expose the local index to MCP clients. The server speaks JSON-RPC
over stdin/stdout, so all logging goes to the log file; use --debug for
verbose logs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	return cmd
}

func runServe(ctx context.Context) error {
	// Stdout belongs to the protocol. Route logs to the file only,
	// keeping stderr clean for clients that surface it.
	if loggingCleanup == nil {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if debugMode {
			logCfg.Level = "debug"
		}
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}

	cfg, provider, st, err := openServices(".")
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	defer func() { _ = provider.Close() }()

	engine := search.NewEngine(st, provider, search.Options{
		RRFConstant:  cfg.Search.RRFConstant,
		QueryTimeout: cfg.Search.QueryTimeout,
		Logger:       slog.Default(),
	})

	srv, err := mcp.NewServer(engine, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("starting MCP server",
		slog.String("transport", cfg.Server.Transport),
		slog.Int("chunks", st.TotalChunkCount()))

	return srv.Serve(ctx, cfg.Server.Transport)
}
