// Package search combines vector KNN and full-text retrieval into one
// ranked result list using Reciprocal Rank Fusion.
package search

import (
	"context"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/embed"
	"github.com/lodestar-dev/lodestar/internal/store"
)

// Match types describe which retrieval paths surfaced a result.
const (
	MatchSemantic = "semantic" // vector KNN only
	MatchKeyword  = "keyword"  // full-text only
	MatchHybrid   = "hybrid"   // both
)

// Result limits.
const (
	MinLimit = 1
	MaxLimit = 20

	// candidateMultiplier and maxCandidates bound how many candidates
	// each retrieval path contributes before fusion.
	candidateMultiplier = 5
	maxCandidates       = 50
)

// ScoredChunk is one fused search hit.
type ScoredChunk struct {
	Chunk *chunk.Chunk

	// RRFScore is the fused relevance score, higher is better.
	RRFScore float64

	// Distance is the cosine distance from the query embedding, nil for
	// keyword-only matches.
	Distance *float32

	// MatchType is MatchSemantic, MatchKeyword or MatchHybrid.
	MatchType string
}

// Storage is the slice of the index store the engine reads.
type Storage interface {
	SearchVectors(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
	SearchText(ctx context.Context, terms []string, limit int) ([]*store.TextResult, error)
	GetChunk(ctx context.Context, chunkID string) (*chunk.Chunk, error)
	GetChunksForSource(ctx context.Context, url string, start, end int) ([]*chunk.Chunk, error)
}

// Embedder produces the query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (*embed.Embedding, error)
}
