package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/search"
)

type fakeEngine struct {
	results []*search.ScoredChunk
	chunks  []*chunk.Chunk
	err     error

	lastQuery string
	lastLimit int
	lastURL   string
	lastStart int
	lastEnd   int
}

func (f *fakeEngine) Query(ctx context.Context, query string, limit int) ([]*search.ScoredChunk, error) {
	f.lastQuery, f.lastLimit = query, limit
	return f.results, f.err
}

func (f *fakeEngine) GetChunksForSource(ctx context.Context, url string, start, end int) ([]*chunk.Chunk, error) {
	f.lastURL, f.lastStart, f.lastEnd = url, start, end
	return f.chunks, f.err
}

func newTestServer(t *testing.T, engine QueryEngine) *Server {
	t.Helper()
	s, err := NewServer(engine, nil)
	require.NoError(t, err)
	return s
}

func intPtr(v int) *int { return &v }

func TestQueryHandler_WireShape(t *testing.T) {
	distance := float32(0.12)
	engine := &fakeEngine{results: []*search.ScoredChunk{
		{
			Chunk: &chunk.Chunk{
				ChunkID:          "abc",
				Content:          "[Topic: Guide]\nbody",
				Section:          "Guide",
				HeadingHierarchy: []string{"Guide"},
				ChunkIndex:       0,
				TotalChunks:      2,
				URL:              "file:///doc.md",
			},
			RRFScore:  0.032,
			Distance:  &distance,
			MatchType: search.MatchHybrid,
		},
		{
			Chunk:     &chunk.Chunk{ChunkID: "def", Content: "other", URL: "file:///doc.md"},
			RRFScore:  0.016,
			MatchType: search.MatchKeyword,
		},
	}}

	s := newTestServer(t, engine)
	_, out, err := s.queryHandler(context.Background(), nil, QueryInput{Query: "guide", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, "guide", out.Query)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 5, engine.lastLimit)

	require.Len(t, out.Results, 2)
	first := out.Results[0]
	assert.Equal(t, "abc", first.ChunkID)
	require.NotNil(t, first.Distance)
	assert.Equal(t, float32(0.12), *first.Distance)
	assert.Equal(t, "hybrid", first.MatchType)
	assert.Equal(t, []string{"Guide"}, first.HeadingHierarchy)
	assert.Equal(t, 2, first.TotalChunks)

	// Keyword-only matches serialize distance as null.
	assert.Nil(t, out.Results[1].Distance)
}

func TestQueryHandler_DefaultLimit(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(t, engine)

	_, _, err := s.queryHandler(context.Background(), nil, QueryInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, defaultQueryLimit, engine.lastLimit)
}

func TestQueryHandler_MissingQuery(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	_, _, err := s.queryHandler(context.Background(), nil, QueryInput{})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidParams, pe.Code)
}

func TestQueryHandler_MapsEngineError(t *testing.T) {
	engine := &fakeEngine{err: errors.TimeoutError("query embedding", nil)}
	s := newTestServer(t, engine)

	_, _, err := s.queryHandler(context.Background(), nil, QueryInput{Query: "q"})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeTimeout, pe.Code)
}

func TestGetChunksHandler_RangeDefaults(t *testing.T) {
	engine := &fakeEngine{chunks: []*chunk.Chunk{
		{ChunkID: "a", Content: "first", Section: "Doc", ChunkIndex: 0, TotalChunks: 2},
		{ChunkID: "b", Content: "second", Section: "Doc", ChunkIndex: 1, TotalChunks: 2},
	}}
	s := newTestServer(t, engine)

	_, out, err := s.getChunksHandler(context.Background(), nil, GetChunksInput{FilePath: "file:///doc.md"})
	require.NoError(t, err)

	assert.Equal(t, "file:///doc.md", engine.lastURL)
	assert.Equal(t, 0, engine.lastStart)
	assert.Equal(t, -1, engine.lastEnd)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "a", out.Chunks[0].ChunkID)
	assert.Equal(t, 1, out.Chunks[1].ChunkIndex)
}

func TestGetChunksHandler_ExplicitRange(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(t, engine)

	_, _, err := s.getChunksHandler(context.Background(), nil, GetChunksInput{
		FilePath:   "file:///doc.md",
		StartIndex: intPtr(2),
		EndIndex:   intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, engine.lastStart)
	assert.Equal(t, 5, engine.lastEnd)
}

func TestGetChunksHandler_InvalidRange(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	_, _, err := s.getChunksHandler(context.Background(), nil, GetChunksInput{
		FilePath:   "file:///doc.md",
		StartIndex: intPtr(5),
		EndIndex:   intPtr(2),
	})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidParams, pe.Code)
}

func TestGetChunksHandler_MissingFilePath(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	_, _, err := s.getChunksHandler(context.Background(), nil, GetChunksInput{})
	require.Error(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", errors.TimeoutError("slow", nil), ErrCodeTimeout},
		{"validation", errors.ValidationError("bad input", nil), ErrCodeInvalidParams},
		{"auth", errors.AuthError("bad key", nil), ErrCodeEmbeddingFailed},
		{"provider", errors.ProviderError("flaked", nil), ErrCodeEmbeddingFailed},
		{"io", errors.IOError("disk", nil), ErrCodeIndexNotFound},
		{"internal", errors.InternalError("boom", nil), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := MapError(tt.err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.want, pe.Code)
		})
	}

	assert.Nil(t, MapError(nil))
}

func TestMapError_CarriesSuggestion(t *testing.T) {
	err := errors.AuthError("invalid API key", nil).
		WithSuggestion("check the LODESTAR_API_KEY environment variable")

	pe := MapError(err)
	assert.Contains(t, pe.Message, "invalid API key")
	assert.Contains(t, pe.Message, "LODESTAR_API_KEY")
}
