package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/search"
	"github.com/lodestar-dev/lodestar/pkg/version"
)

const defaultQueryLimit = 10

// QueryEngine is the retrieval surface the server exposes.
type QueryEngine interface {
	Query(ctx context.Context, query string, limit int) ([]*search.ScoredChunk, error)
	GetChunksForSource(ctx context.Context, url string, start, end int) ([]*chunk.Chunk, error)
}

// Server wraps the MCP SDK server with lodestar's tools.
type Server struct {
	mcp    *mcp.Server
	engine QueryEngine
	logger *slog.Logger
}

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"free-text query to run against the index"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, clamped to 1-20"`
}

// QueryResultOutput is one hit in the query tool response.
type QueryResultOutput struct {
	ChunkID          string   `json:"chunk_id" jsonschema:"stable chunk identifier"`
	Distance         *float32 `json:"distance" jsonschema:"cosine distance from the query embedding, null for keyword-only matches"`
	RRFScore         float64  `json:"rrf_score" jsonschema:"fused relevance score, higher is better"`
	MatchType        string   `json:"match_type" jsonschema:"semantic, keyword or hybrid"`
	Content          string   `json:"content" jsonschema:"chunk text with heading breadcrumb"`
	URL              string   `json:"url" jsonschema:"source document identifier"`
	Section          string   `json:"section" jsonschema:"deepest heading of the chunk"`
	HeadingHierarchy []string `json:"heading_hierarchy" jsonschema:"ancestor headings, shallow to deep"`
	ChunkIndex       int      `json:"chunk_index" jsonschema:"position within the source document"`
	TotalChunks      int      `json:"total_chunks" jsonschema:"number of chunks in the source document"`
}

// QueryOutput is the query tool response.
type QueryOutput struct {
	Query   string              `json:"query" jsonschema:"the query that was executed"`
	Count   int                 `json:"count" jsonschema:"number of results returned"`
	Results []QueryResultOutput `json:"results" jsonschema:"fused results, best first"`
}

// GetChunksInput is the input schema for the get_chunks tool.
type GetChunksInput struct {
	FilePath   string `json:"file_path" jsonschema:"source document URL or path as stored in the index"`
	StartIndex *int   `json:"startIndex,omitempty" jsonschema:"first chunk index to return, default 0"`
	EndIndex   *int   `json:"endIndex,omitempty" jsonschema:"last chunk index to return inclusive, default end of document"`
}

// ChunkOutput is one chunk in the get_chunks tool response.
type ChunkOutput struct {
	ChunkID     string `json:"chunk_id" jsonschema:"stable chunk identifier"`
	Content     string `json:"content" jsonschema:"chunk text with heading breadcrumb"`
	Section     string `json:"section" jsonschema:"deepest heading of the chunk"`
	ChunkIndex  int    `json:"chunk_index" jsonschema:"position within the source document"`
	TotalChunks int    `json:"total_chunks" jsonschema:"number of chunks in the source document"`
}

// GetChunksOutput is the get_chunks tool response.
type GetChunksOutput struct {
	FilePath string        `json:"file_path" jsonschema:"the requested source document"`
	Count    int           `json:"count" jsonschema:"number of chunks returned"`
	Chunks   []ChunkOutput `json:"chunks" jsonschema:"chunks ordered by chunk_index"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine QueryEngine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.InternalError("query engine is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine: engine,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "lodestar",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Hybrid search over indexed documents. Combines semantic vector search with keyword matching and returns fused, ranked chunks with their section context.",
	}, s.queryHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_chunks",
		Description: "Read a document's chunks in order, optionally restricted to a chunk index range. Use after query to pull the surrounding context of a hit.",
	}, s.getChunksHandler)

	s.logger.Info("MCP tools registered", "count", 2)
}

func (s *Server) queryHandler(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if input.Query == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("query parameter is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	results, err := s.engine.Query(ctx, input.Query, limit)
	if err != nil {
		s.logger.Error("query tool failed", "error", err)
		return nil, QueryOutput{}, MapError(err)
	}

	output := QueryOutput{
		Query:   input.Query,
		Count:   len(results),
		Results: make([]QueryResultOutput, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, QueryResultOutput{
			ChunkID:          r.Chunk.ChunkID,
			Distance:         r.Distance,
			RRFScore:         r.RRFScore,
			MatchType:        r.MatchType,
			Content:          r.Chunk.Content,
			URL:              r.Chunk.URL,
			Section:          r.Chunk.Section,
			HeadingHierarchy: r.Chunk.HeadingHierarchy,
			ChunkIndex:       r.Chunk.ChunkIndex,
			TotalChunks:      r.Chunk.TotalChunks,
		})
	}

	return nil, output, nil
}

func (s *Server) getChunksHandler(ctx context.Context, req *mcp.CallToolRequest, input GetChunksInput) (
	*mcp.CallToolResult,
	GetChunksOutput,
	error,
) {
	if input.FilePath == "" {
		return nil, GetChunksOutput{}, NewInvalidParamsError("file_path parameter is required")
	}

	start := 0
	if input.StartIndex != nil {
		start = *input.StartIndex
	}
	end := -1
	if input.EndIndex != nil {
		end = *input.EndIndex
	}
	if input.StartIndex != nil && input.EndIndex != nil && *input.EndIndex < *input.StartIndex {
		return nil, GetChunksOutput{}, NewInvalidParamsError("endIndex must not be smaller than startIndex")
	}

	chunks, err := s.engine.GetChunksForSource(ctx, input.FilePath, start, end)
	if err != nil {
		s.logger.Error("get_chunks tool failed", "error", err)
		return nil, GetChunksOutput{}, MapError(err)
	}

	output := GetChunksOutput{
		FilePath: input.FilePath,
		Count:    len(chunks),
		Chunks:   make([]ChunkOutput, 0, len(chunks)),
	}
	for _, c := range chunks {
		output.Chunks = append(output.Chunks, ChunkOutput{
			ChunkID:     c.ChunkID,
			Content:     c.Content,
			Section:     c.Section,
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: c.TotalChunks,
		})
	}

	return nil, output, nil
}

// Serve runs the server over the given transport until ctx ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", "transport", transport)

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", "error", err)
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return errors.ConfigError(fmt.Sprintf("unknown transport %q (supported: stdio)", transport), nil)
	}
}
