package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/store"
)

// Options configures the engine.
type Options struct {
	// RRFConstant is the fusion smoothing constant; <= 0 means the
	// default of 60.
	RRFConstant int

	// QueryTimeout bounds a whole Query call; 0 means no engine-imposed
	// deadline beyond the caller's context.
	QueryTimeout time.Duration

	Logger *slog.Logger
}

// Engine answers free-text queries over the index store.
type Engine struct {
	storage  Storage
	embedder Embedder
	rrfK     int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine creates an engine over storage and embedder.
func NewEngine(storage Storage, embedder Embedder, opts Options) *Engine {
	k := opts.RRFConstant
	if k <= 0 {
		k = DefaultRRFConstant
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage:  storage,
		embedder: embedder,
		rrfK:     k,
		timeout:  opts.QueryTimeout,
		logger:   logger,
	}
}

// Query runs both retrieval paths and returns up to limit fused
// results, best first. The limit is clamped to [1, 20].
func (e *Engine) Query(ctx context.Context, query string, limit int) ([]*ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.ValidationError("query must not be empty", nil)
	}

	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
			return nil, errors.TimeoutError("query embedding", err)
		}
		return nil, err
	}

	candidateLimit := limit * candidateMultiplier
	if candidateLimit > maxCandidates {
		candidateLimit = maxCandidates
	}

	terms := normalizeQueryTerms(query)

	vec, text, err := e.gatherCandidates(ctx, embedding.Vector, terms, candidateLimit)
	if err != nil {
		return nil, err
	}

	fused := fuse(vec, text, e.rrfK, weightsForTermCount(len(terms)))
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results, err := e.enrich(ctx, fused)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query complete",
		"terms", len(terms),
		"vector_candidates", len(vec),
		"text_candidates", len(text),
		"results", len(results),
		"latency_ms", time.Since(start).Milliseconds())

	return results, nil
}

// GetChunksForSource returns chunks of a source document by index
// range, ascending. A negative end means no upper bound.
func (e *Engine) GetChunksForSource(ctx context.Context, url string, start, end int) ([]*chunk.Chunk, error) {
	return e.storage.GetChunksForSource(ctx, url, start, end)
}

// gatherCandidates runs both retrieval paths in parallel. A single
// failing path degrades to the other; both failing is an error.
func (e *Engine) gatherCandidates(ctx context.Context, embedding []float32, terms []string, limit int) (
	vec []*store.VectorResult,
	text []*store.TextResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var vecErr, textErr error

	g.Go(func() error {
		vec, vecErr = e.storage.SearchVectors(gctx, embedding, limit)
		return nil
	})

	g.Go(func() error {
		if len(terms) == 0 {
			return nil
		}
		text, textErr = e.storage.SearchText(gctx, terms, limit)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if vecErr != nil && textErr != nil {
		return nil, nil, stderrors.Join(vecErr, textErr)
	}
	if vecErr != nil {
		e.logger.Warn("vector search failed, using text results only", "error", vecErr)
		vec = nil
	}
	if textErr != nil {
		e.logger.Warn("text search failed, using vector results only", "error", textErr)
		text = nil
	}

	return vec, text, nil
}

// enrich resolves fused hits into full chunks. Hits whose chunk row has
// disappeared are dropped.
func (e *Engine) enrich(ctx context.Context, fused []*fusedHit) ([]*ScoredChunk, error) {
	results := make([]*ScoredChunk, 0, len(fused))
	for _, hit := range fused {
		c, err := e.storage.GetChunk(ctx, hit.chunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			e.logger.Warn("fused hit has no chunk row, dropping", "chunk_id", hit.chunkID)
			continue
		}
		results = append(results, &ScoredChunk{
			Chunk:     c,
			RRFScore:  hit.score,
			Distance:  hit.distance,
			MatchType: hit.matchType,
		})
	}
	return results, nil
}

// normalizeQueryTerms strips every rune that is not a letter, digit or
// space, then splits on whitespace and drops empties.
func normalizeQueryTerms(query string) []string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}
