// Package index drives documents through chunking, embedding and
// storage, skipping sources whose content has not changed.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/embed"
	"github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/store"
)

// Document is one unit of input to the runner.
type Document struct {
	// URL is the stable source identifier.
	URL string

	// Content is the raw document text.
	Content string
}

// Stats summarizes one Run.
type Stats struct {
	Indexed       int // documents chunked, embedded and stored
	Skipped       int // documents whose content hash was unchanged
	Failed        int // documents abandoned after an error
	ChunksWritten int
}

// Storage is the slice of the index store the runner writes.
type Storage interface {
	GetSourceRecord(ctx context.Context, url string) (*store.SourceRecord, error)
	UpsertSourceRecord(ctx context.Context, rec *store.SourceRecord) error
	RemoveChunksForSource(ctx context.Context, url string) (int, error)
	UpsertChunk(ctx context.Context, c *chunk.Chunk) error
}

// ProgressFunc reports per-document progress during a run.
type ProgressFunc func(done, total int, url string)

// Runner indexes documents one at a time. A failing document is logged
// and skipped; an authentication failure from the provider aborts the
// whole run since every later document would fail the same way.
type Runner struct {
	storage  Storage
	provider embed.Provider
	chunker  *chunk.Chunker
	logger   *slog.Logger
	progress ProgressFunc
}

// NewRunner creates a runner. logger and progress may be nil.
func NewRunner(storage Storage, provider embed.Provider, chunker *chunk.Chunker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		storage:  storage,
		provider: provider,
		chunker:  chunker,
		logger:   logger,
	}
}

// SetProgressFunc installs a per-document progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// Run indexes docs sequentially and returns counts for the whole run.
// Partial stats are returned alongside the error when a run aborts.
func (r *Runner) Run(ctx context.Context, docs []Document) (*Stats, error) {
	stats := &Stats{}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, errors.TimeoutError("indexing run cancelled", err)
		}

		written, err := r.indexDocument(ctx, doc)
		switch {
		case err == nil && written < 0:
			stats.Skipped++
		case err == nil:
			stats.Indexed++
			stats.ChunksWritten += written
		case errors.GetCode(err) == errors.ErrCodeAuth:
			// Every remaining document would hit the same wall.
			return stats, err
		case errors.GetCode(err) == errors.ErrCodeTimeout:
			return stats, err
		default:
			stats.Failed++
			r.logger.Warn("document failed, continuing run",
				"url", doc.URL, "error", err)
		}

		if r.progress != nil {
			r.progress(i+1, len(docs), doc.URL)
		}
	}

	r.logger.Info("indexing run complete",
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"chunks", stats.ChunksWritten)

	return stats, nil
}

// indexDocument returns the number of chunks written, or -1 when the
// document was skipped as unchanged.
func (r *Runner) indexDocument(ctx context.Context, doc Document) (int, error) {
	contentHash := hashContent(doc.Content)

	rec, err := r.storage.GetSourceRecord(ctx, doc.URL)
	if err != nil {
		return 0, err
	}
	if rec != nil && rec.ContentHash == contentHash {
		r.logger.Debug("source unchanged, skipping", "url", doc.URL)
		return -1, nil
	}

	chunks := r.chunker.Chunk(doc.Content, doc.URL)

	// Stale chunks go first so a re-chunked document never keeps
	// leftovers from its previous shape.
	if _, err := r.storage.RemoveChunksForSource(ctx, doc.URL); err != nil {
		return 0, err
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, errors.TimeoutError("indexing run cancelled", err)
		}

		emb, err := r.provider.Embed(ctx, c.Content)
		if err != nil {
			return 0, err
		}
		c.Embedding = emb.Vector

		if err := r.storage.UpsertChunk(ctx, c); err != nil {
			return 0, err
		}
	}

	// The source record lands only after every chunk is stored, so an
	// interrupted document is retried in full next run.
	err = r.storage.UpsertSourceRecord(ctx, &store.SourceRecord{
		URL:         doc.URL,
		ContentHash: contentHash,
		ModifiedAt:  time.Now(),
		ChunkCount:  len(chunks),
	})
	if err != nil {
		return 0, err
	}

	return len(chunks), nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
