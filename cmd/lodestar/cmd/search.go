package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestar-dev/lodestar/internal/search"
)

const snippetLength = 200

func newSearchCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index from the shell",
		Long: `Run a hybrid query against the local index and print the fused
results. Semantic and keyword retrieval run in parallel and are merged
with reciprocal rank fusion.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results (1-20)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, format string) error {
	cfg, provider, st, err := openServices(".")
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	defer func() { _ = provider.Close() }()

	if st.TotalChunkCount() == 0 {
		return fmt.Errorf("the index is empty\nRun 'lodestar index <path>' first")
	}

	engine := search.NewEngine(st, provider, search.Options{
		RRFConstant:  cfg.Search.RRFConstant,
		QueryTimeout: cfg.Search.QueryTimeout,
		Logger:       slog.Default(),
	})

	results, err := engine.Query(ctx, query, limit)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return writeSearchJSON(cmd.OutOrStdout(), query, results)
	case "text", "":
		writeSearchText(cmd.OutOrStdout(), query, results)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

type searchResultJSON struct {
	ChunkID   string   `json:"chunk_id"`
	URL       string   `json:"url"`
	Section   string   `json:"section"`
	RRFScore  float64  `json:"rrf_score"`
	Distance  *float32 `json:"distance"`
	MatchType string   `json:"match_type"`
	Content   string   `json:"content"`
}

func writeSearchJSON(w io.Writer, query string, results []*search.ScoredChunk) error {
	out := struct {
		Query   string             `json:"query"`
		Count   int                `json:"count"`
		Results []searchResultJSON `json:"results"`
	}{
		Query:   query,
		Count:   len(results),
		Results: make([]searchResultJSON, 0, len(results)),
	}

	for _, r := range results {
		out.Results = append(out.Results, searchResultJSON{
			ChunkID:   r.Chunk.ChunkID,
			URL:       r.Chunk.URL,
			Section:   r.Chunk.Section,
			RRFScore:  r.RRFScore,
			Distance:  r.Distance,
			MatchType: r.MatchType,
			Content:   r.Chunk.Content,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSearchText(w io.Writer, query string, results []*search.ScoredChunk) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}

	fmt.Fprintf(w, "%d results for %q\n\n", len(results), query)

	for i, r := range results {
		location := r.Chunk.URL
		if r.Chunk.Section != "" {
			location += " · " + r.Chunk.Section
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, location)
		fmt.Fprintf(w, "   [%s] score=%.4f\n", r.MatchType, r.RRFScore)
		fmt.Fprintf(w, "   %s\n\n", snippet(r.Chunk.Content, snippetLength))
	}
}

// snippet collapses whitespace and truncates content for one-line display.
func snippet(content string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if len(collapsed) <= maxLen {
		return collapsed
	}
	return collapsed[:maxLen] + "..."
}
