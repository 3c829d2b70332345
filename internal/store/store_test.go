package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
)

func openTestStore(t *testing.T, dir string, dimension int) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:      filepath.Join(dir, "index.db"),
		TextPath:  filepath.Join(dir, "text-index"),
		Dimension: dimension,
	})
	require.NoError(t, err)
	return s
}

func testChunk(id, url string, index int, vec []float32) *chunk.Chunk {
	return &chunk.Chunk{
		ChunkID:          id,
		Content:          fmt.Sprintf("[Topic: Guide]\ncontent of %s", id),
		Section:          "Guide",
		HeadingHierarchy: []string{"Guide"},
		ChunkIndex:       index,
		TotalChunks:      index + 1,
		URL:              url,
		Hash:             id,
		Embedding:        vec,
	}
}

func TestStore_UpsertAndGetChunk(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	c := testChunk("chunk-a", "file:///doc.md", 0, []float32{1, 0, 0, 0})
	require.NoError(t, s.UpsertChunk(ctx, c))

	got, err := s.GetChunk(ctx, "chunk-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, []string{"Guide"}, got.HeadingHierarchy)
	assert.Equal(t, c.Embedding, got.Embedding)

	missing, err := s.GetChunk(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_UpsertIsIdempotentForCounters(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	c := testChunk("chunk-a", "file:///doc.md", 0, []float32{1, 0, 0, 0})
	require.NoError(t, s.UpsertChunk(ctx, c))
	require.NoError(t, s.UpsertChunk(ctx, c))
	require.NoError(t, s.UpsertChunk(ctx, c))

	assert.Equal(t, 1, s.TotalChunkCount())
}

func TestStore_UpsertRejectsWrongDimension(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()

	c := testChunk("chunk-a", "file:///doc.md", 0, []float32{1, 0})
	err := s.UpsertChunk(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimension, errors.GetCode(err))
}

func TestStore_NilEmbeddingExcludedFromVectorSearch(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(ctx, testChunk("with-vec", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("no-vec", "file:///a.md", 1, nil)))

	results, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "with-vec", results[0].ChunkID)

	// The row itself is still readable; its embedding reads back as absent.
	got, err := s.GetChunk(ctx, "no-vec")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Embedding)
}

func TestStore_SearchVectorsAscendingDistance(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(ctx, testChunk("exact", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("near", "file:///a.md", 1, []float32{0.9, 0.1, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("far", "file:///a.md", 2, []float32{0, 0, 1, 0})))

	results, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ChunkID)
	assert.Equal(t, "near", results[1].ChunkID)
	assert.Equal(t, "far", results[2].ChunkID)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	assert.LessOrEqual(t, results[1].Distance, results[2].Distance)
}

func TestStore_SearchVectorsRejectsWrongDimension(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()

	_, err := s.SearchVectors(context.Background(), []float32{1, 0}, 3)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimension, errors.GetCode(err))
}

func TestStore_RemoveChunksForSource(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(ctx, testChunk("a0", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("a1", "file:///a.md", 1, []float32{0, 1, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("b0", "file:///b.md", 0, []float32{0, 0, 1, 0})))

	removed, err := s.RemoveChunksForSource(ctx, "file:///a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.TotalChunkCount())

	// Vector hits for the removed source are gone.
	results, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b0", results[0].ChunkID)

	// Removing again is a no-op.
	removed, err = s.RemoveChunksForSource(ctx, "file:///a.md")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStore_GetChunksForSourceRange(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c := testChunk(fmt.Sprintf("c%d", i), "file:///doc.md", i, nil)
		require.NoError(t, s.UpsertChunk(ctx, c))
	}

	t.Run("full range", func(t *testing.T) {
		chunks, err := s.GetChunksForSource(ctx, "file:///doc.md", 0, -1)
		require.NoError(t, err)
		require.Len(t, chunks, 5)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
		}
	})

	t.Run("bounded range", func(t *testing.T) {
		chunks, err := s.GetChunksForSource(ctx, "file:///doc.md", 1, 3)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, 1, chunks[0].ChunkIndex)
		assert.Equal(t, 3, chunks[2].ChunkIndex)
	})

	t.Run("unknown source", func(t *testing.T) {
		chunks, err := s.GetChunksForSource(ctx, "file:///other.md", 0, -1)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestStore_SourceRecords(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	rec := &SourceRecord{
		URL:         "file:///doc.md",
		ContentHash: "abc123",
		ModifiedAt:  time.Now().Truncate(time.Second),
		ChunkCount:  3,
	}
	require.NoError(t, s.UpsertSourceRecord(ctx, rec))
	assert.Equal(t, 1, s.TrackedSourceCount())

	// Updating does not bump the counter.
	rec.ContentHash = "def456"
	require.NoError(t, s.UpsertSourceRecord(ctx, rec))
	assert.Equal(t, 1, s.TrackedSourceCount())

	got, err := s.GetSourceRecord(ctx, "file:///doc.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "def456", got.ContentHash)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, rec.ModifiedAt.Unix(), got.ModifiedAt.Unix())

	missing, err := s.GetSourceRecord(ctx, "file:///other.md")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.RemoveSourceRecord(ctx, "file:///doc.md"))
	assert.Zero(t, s.TrackedSourceCount())

	// Removing an untracked URL leaves the counter alone.
	require.NoError(t, s.RemoveSourceRecord(ctx, "file:///doc.md"))
	assert.Zero(t, s.TrackedSourceCount())
}

func TestStore_DimensionPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s := openTestStore(t, dir, 4)
	require.NoError(t, s.UpsertChunk(context.Background(),
		testChunk("a", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.Close())

	// Reopening with a different requested dimension keeps the persisted one.
	s2 := openTestStore(t, dir, 768)
	defer s2.Close()
	assert.Equal(t, 4, s2.Dimension())
}

func TestStore_LegacyDimensionDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	s := openTestStore(t, dir, 4)
	require.NoError(t, s.UpsertChunk(context.Background(),
		testChunk("a", "file:///a.md", 0, nil)))
	require.NoError(t, s.Close())

	// Simulate a database written before the dimension was recorded.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM index_meta WHERE key = ?`, metaKeyDimension)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s2, err := Open(Options{Path: path, TextPath: filepath.Join(dir, "text-index"), Dimension: 4})
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, legacyDimension, s2.Dimension())
}

func TestStore_OpenRequiresDimensionForFreshIndex(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(Options{
		Path:     filepath.Join(dir, "index.db"),
		TextPath: filepath.Join(dir, "text-index"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestStore_VectorIndexRebuiltOnReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir, 4)
	require.NoError(t, s.UpsertChunk(ctx, testChunk("a", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertChunk(ctx, testChunk("b", "file:///a.md", 1, nil)))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir, 4)
	defer s2.Close()

	assert.Equal(t, 2, s2.TotalChunkCount())

	results, err := s2.SearchVectors(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestStore_ClearAll(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunk(ctx, testChunk("a", "file:///a.md", 0, []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertSourceRecord(ctx, &SourceRecord{
		URL: "file:///a.md", ContentHash: "h", ModifiedAt: time.Now(), ChunkCount: 1,
	}))

	require.NoError(t, s.ClearAll(ctx))

	assert.Zero(t, s.TotalChunkCount())
	assert.Zero(t, s.TrackedSourceCount())

	results, err := s.SearchVectors(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	text, err := s.SearchText(ctx, []string{"content"}, 10)
	require.NoError(t, err)
	assert.Empty(t, text)

	// Dimension survives a clear.
	assert.Equal(t, 4, s.Dimension())
}

func TestStore_TextSearchFindsUpsertedChunk(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 4)
	defer s.Close()
	ctx := context.Background()

	c := testChunk("a", "file:///a.md", 0, nil)
	c.Content = "[Topic: Guide]\nhybrid retrieval with reciprocal rank fusion"
	require.NoError(t, s.UpsertChunk(ctx, c))

	results, err := s.SearchText(ctx, []string{"reciprocal", "fusion"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestStore_UnknownTextBackend(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(Options{
		Path:        filepath.Join(dir, "index.db"),
		TextPath:    filepath.Join(dir, "text-index"),
		TextBackend: "elasticsearch",
		Dimension:   4,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfig, errors.GetCode(err))
}
