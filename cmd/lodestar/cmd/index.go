package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/embed"
	"github.com/lodestar-dev/lodestar/internal/index"
	"github.com/lodestar-dev/lodestar/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index markdown documentation under a path",
		Long: `Walk a directory (or take a single file), split each markdown
document into heading-aware chunks, embed them, and store them in the
local hybrid index. Unchanged documents are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runIndex(cmd.Context(), cmd, root, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the interactive progress display")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root string, plain bool) error {
	cfg, provider, st, err := openServices(".")
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	defer func() { _ = provider.Close() }()

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: plain,
		NoColor:    ui.DetectNoColor(),
		RootPath:   root,
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDiscover, Message: "scanning " + root})

	docs, err := index.DiscoverDocuments(root)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		renderer.Complete(ui.CompletionStats{})
		return fmt.Errorf("no indexable documents found under %s", root)
	}

	// Local models download their weights on first use; surface that as
	// its own stage.
	if cached, ok := provider.(*embed.CachedProvider); ok {
		if local, ok := cached.Inner().(*embed.LocalProvider); ok {
			local.SetProgressFunc(func(downloaded, total int64) {
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageDownload,
					Current: int(downloaded >> 20),
					Total:   int(total >> 20),
					Message: fmt.Sprintf("downloading %s", cfg.Embeddings.Model),
				})
			})
		}
	}

	runner := index.NewRunner(st, provider, chunk.NewChunker(), slog.Default())
	runner.SetProgressFunc(func(done, total int, url string) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:    ui.StageIndex,
			Current:  done,
			Total:    total,
			Document: url,
		})
	})

	start := time.Now()
	stats, runErr := runner.Run(ctx, docs)

	if stats != nil {
		renderer.Complete(ui.CompletionStats{
			Indexed:  stats.Indexed,
			Skipped:  stats.Skipped,
			Failed:   stats.Failed,
			Chunks:   stats.ChunksWritten,
			Duration: time.Since(start),
		})
	}

	return runErr
}
