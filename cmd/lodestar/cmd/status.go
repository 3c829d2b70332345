package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the local index:
  - Number of indexed documents and chunks
  - Embedding dimension and provider
  - Text backend and storage sizes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusInfo is the collected index status.
type statusInfo struct {
	DataDir     string `json:"data_dir"`
	Documents   int    `json:"documents"`
	Chunks      int    `json:"chunks"`
	Dimension   int    `json:"dimension"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	TextBackend string `json:"text_backend"`
	IndexSize   int64  `json:"index_size_bytes"`
	TextSize    int64  `json:"text_size_bytes"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, st, err := openExistingStore(".")
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	info := statusInfo{
		DataDir:     cfg.Paths.DataDir,
		Documents:   st.TrackedSourceCount(),
		Chunks:      st.TotalChunkCount(),
		Dimension:   st.Dimension(),
		Provider:    cfg.Embeddings.Provider,
		Model:       cfg.Embeddings.Model,
		TextBackend: cfg.Search.TextBackend,
		IndexSize:   getFileSize(cfg.IndexPath()),
	}

	// The text backend appends its own extension; check both.
	if size := getFileSize(cfg.TextIndexPath() + ".db"); size > 0 {
		info.TextSize = size
	} else {
		info.TextSize = getDirSize(cfg.TextIndexPath() + ".bleve")
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	writeStatusText(cmd.OutOrStdout(), info)
	return nil
}

func writeStatusText(w io.Writer, info statusInfo) {
	fmt.Fprintf(w, "Data dir:     %s\n", info.DataDir)
	fmt.Fprintf(w, "Documents:    %d\n", info.Documents)
	fmt.Fprintf(w, "Chunks:       %d\n", info.Chunks)
	fmt.Fprintf(w, "Dimension:    %d\n", info.Dimension)
	fmt.Fprintf(w, "Provider:     %s (%s)\n", info.Provider, info.Model)
	fmt.Fprintf(w, "Text backend: %s\n", info.TextBackend)
	fmt.Fprintf(w, "Index size:   %s\n", formatBytes(info.IndexSize))
	fmt.Fprintf(w, "Text size:    %s\n", formatBytes(info.TextSize))
}

// formatBytes renders a byte count in human units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// getFileSize returns the size of a file in bytes, 0 if absent.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files under a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
