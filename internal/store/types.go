// Package store persists chunks in SQLite and keeps two retrieval
// indexes over them: a full-text index (FTS5 or Bleve) and an
// in-memory HNSW graph for vector KNN.
package store

import (
	"context"
	"time"

	"github.com/lodestar-dev/lodestar/internal/chunk"
)

// Text index backends.
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

// TextResult is a full-text match. Score is relevance, higher is better.
type TextResult struct {
	ChunkID string
	Score   float64
}

// VectorResult is a KNN match. Distance is cosine distance, lower is closer.
type VectorResult struct {
	ChunkID  string
	Distance float32
}

// SourceRecord tracks one indexed document so unchanged content can be
// skipped on re-index.
type SourceRecord struct {
	URL         string
	ContentHash string
	ModifiedAt  time.Time
	ChunkCount  int
}

// TextIndex is the full-text side of the store. Implementations receive
// pre-normalized query terms and decide how to combine them; every term
// matches as a prefix.
type TextIndex interface {
	// Index adds or replaces the given chunks.
	Index(ctx context.Context, chunks []*chunk.Chunk) error

	// Search returns up to limit chunks matching all terms, best first.
	Search(ctx context.Context, terms []string, limit int) ([]*TextResult, error)

	// Delete removes the given chunk IDs. Missing IDs are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	Close() error
}
