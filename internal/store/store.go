package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
)

// legacyDimension is assumed for databases that predate the
// embedding_dimension metadata key.
const legacyDimension = 1536

const metaKeyDimension = "embedding_dimension"

// Options configures Open.
type Options struct {
	// Path is the SQLite database file for chunks, sources and metadata.
	Path string

	// TextBackend selects the full-text index ("sqlite" or "bleve").
	// Empty means sqlite.
	TextBackend string

	// TextPath is the base path for the text index; the backend appends
	// its own extension.
	TextPath string

	// Dimension is the embedding dimension for a fresh database. An
	// existing database keeps its persisted dimension regardless.
	Dimension int

	Logger *slog.Logger
}

// Store owns the chunk rows plus both retrieval indexes and keeps them
// synchronized under a single writer.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	text   TextIndex
	vector *vectorIndex
	logger *slog.Logger

	dimension   int
	chunkCount  int
	sourceCount int

	closed bool
}

// Open opens or creates the store at opts.Path. The embedding dimension
// is fixed for the lifetime of the database: a persisted value wins over
// opts.Dimension, and databases with rows but no recorded dimension fall
// back to the legacy default.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.ValidationError("store path is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := opts.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("open database %s", opts.Path), err)
	}

	// modernc/sqlite serializes access; a single connection avoids
	// SQLITE_BUSY between the writer and readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.IOError(pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		vector: newVectorIndex(),
		logger: logger,
	}

	if err := s.resolveDimension(opts.Dimension); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadCounters(); err != nil {
		_ = db.Close()
		return nil, err
	}

	text, err := NewTextIndex(opts.TextBackend, opts.TextPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.text = text

	if err := s.rebuildVectorIndex(); err != nil {
		_ = text.Close()
		_ = db.Close()
		return nil, err
	}

	logger.Info("store opened",
		"path", opts.Path,
		"dimension", s.dimension,
		"chunks", s.chunkCount,
		"sources", s.sourceCount,
		"vectors", s.vector.Len())

	return s, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id          TEXT PRIMARY KEY,
		url               TEXT NOT NULL,
		section           TEXT NOT NULL,
		heading_hierarchy TEXT NOT NULL,
		content           TEXT NOT NULL,
		hash              TEXT NOT NULL,
		chunk_index       INTEGER NOT NULL,
		total_chunks      INTEGER NOT NULL,
		embedding         BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url, chunk_index);

	CREATE TABLE IF NOT EXISTS sources (
		url          TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		modified_at  INTEGER NOT NULL,
		chunk_count  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return errors.IOError("create schema", err)
	}
	return nil
}

// resolveDimension fixes s.dimension for this session. Priority:
// persisted metadata, then legacy default for pre-metadata databases
// with rows, then the requested value.
func (s *Store) resolveDimension(requested int) error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, metaKeyDimension).Scan(&value)
	switch {
	case err == nil:
		persisted, perr := strconv.Atoi(value)
		if perr != nil || persisted <= 0 {
			return errors.InternalError(fmt.Sprintf("corrupt %s metadata: %q", metaKeyDimension, value), perr)
		}
		if requested > 0 && requested != persisted {
			s.logger.Warn("requested embedding dimension differs from persisted, keeping persisted",
				"requested", requested, "persisted", persisted)
		}
		s.dimension = persisted
		return nil

	case err == sql.ErrNoRows:
		var rows int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&rows); err != nil {
			return errors.IOError("count chunks", err)
		}
		if rows > 0 {
			s.logger.Warn("database has chunks but no recorded dimension, assuming legacy default",
				"dimension", legacyDimension)
			s.dimension = legacyDimension
		} else {
			if requested <= 0 {
				return errors.ValidationError("embedding dimension must be positive for a new index", nil)
			}
			s.dimension = requested
		}
		return s.writeMeta(metaKeyDimension, strconv.Itoa(s.dimension))

	default:
		return errors.IOError("read index metadata", err)
	}
}

func (s *Store) writeMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO index_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.IOError("write index metadata", err)
	}
	return nil
}

func (s *Store) loadCounters() error {
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&s.chunkCount); err != nil {
		return errors.IOError("count chunks", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sources`).Scan(&s.sourceCount); err != nil {
		return errors.IOError("count sources", err)
	}
	return nil
}

// rebuildVectorIndex loads every embedded chunk into the HNSW graph.
// Zero vectors mark chunks that were stored without an embedding and
// stay out of the graph so they cannot surface as nearest neighbors.
func (s *Store) rebuildVectorIndex() error {
	rows, err := s.db.Query(`SELECT chunk_id, embedding FROM chunks`)
	if err != nil {
		return errors.IOError("load embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return errors.IOError("scan embedding row", err)
		}
		vec := decodeVector(blob)
		if len(vec) == 0 || isZeroVector(vec) {
			continue
		}
		s.vector.Add(id, vec)
	}
	if err := rows.Err(); err != nil {
		return errors.IOError("iterate embeddings", err)
	}
	return nil
}

// Dimension returns the embedding dimension fixed at open.
func (s *Store) Dimension() int {
	return s.dimension
}

// TotalChunkCount returns the number of stored chunks.
func (s *Store) TotalChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkCount
}

// TrackedSourceCount returns the number of tracked source records.
func (s *Store) TrackedSourceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceCount
}

// UpsertChunk inserts or replaces a chunk in the row store and both
// indexes. A nil embedding is persisted as a zero vector and kept out of
// the vector graph.
func (s *Store) UpsertChunk(ctx context.Context, c *chunk.Chunk) error {
	if c == nil || c.ChunkID == "" {
		return errors.ValidationError("chunk with a non-empty chunk ID is required", nil)
	}
	if c.Embedding != nil && len(c.Embedding) != s.dimension {
		return errors.DimensionError(s.dimension, len(c.Embedding))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("store is closed", nil)
	}

	vec := c.Embedding
	if vec == nil {
		vec = make([]float32, s.dimension)
	}

	hierarchy, err := json.Marshal(c.HeadingHierarchy)
	if err != nil {
		return errors.InternalError("encode heading hierarchy", err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE chunk_id = ?`, c.ChunkID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.IOError("check chunk existence", err)
	}

	if exists {
		_, err = s.db.ExecContext(ctx,
			`UPDATE chunks SET url = ?, section = ?, heading_hierarchy = ?, content = ?,
			 hash = ?, chunk_index = ?, total_chunks = ?, embedding = ?
			 WHERE chunk_id = ?`,
			c.URL, c.Section, string(hierarchy), c.Content,
			c.Hash, c.ChunkIndex, c.TotalChunks, encodeVector(vec), c.ChunkID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO chunks (chunk_id, url, section, heading_hierarchy, content,
			 hash, chunk_index, total_chunks, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ChunkID, c.URL, c.Section, string(hierarchy), c.Content,
			c.Hash, c.ChunkIndex, c.TotalChunks, encodeVector(vec))
	}
	if err != nil {
		return errors.IOError("write chunk row", err)
	}
	if !exists {
		s.chunkCount++
	}

	if err := s.text.Index(ctx, []*chunk.Chunk{c}); err != nil {
		return err
	}

	if c.Embedding != nil {
		s.vector.Add(c.ChunkID, c.Embedding)
	} else {
		s.vector.Remove(c.ChunkID)
	}

	return nil
}

// GetChunk returns the chunk with the given ID, or nil when absent.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, url, section, heading_hierarchy, content, hash,
		 chunk_index, total_chunks, embedding
		 FROM chunks WHERE chunk_id = ?`, chunkID)

	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOError("read chunk", err)
	}
	return c, nil
}

// GetChunksForSource returns chunks of url with chunk_index in
// [start, end], ascending. A negative end means no upper bound.
func (s *Store) GetChunksForSource(ctx context.Context, url string, start, end int) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, url, section, heading_hierarchy, content, hash,
		 chunk_index, total_chunks, embedding
		 FROM chunks WHERE url = ? AND chunk_index BETWEEN ? AND ?
		 ORDER BY chunk_index ASC`, url, start, end)
	if err != nil {
		return nil, errors.IOError("read source chunks", err)
	}
	defer rows.Close()

	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errors.IOError("scan chunk row", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOError("iterate source chunks", err)
	}
	return chunks, nil
}

// RemoveChunksForSource deletes every chunk of url from the row store
// and both indexes, returning the number removed.
func (s *Store) RemoveChunksForSource(ctx context.Context, url string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.InternalError("store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE url = ?`, url)
	if err != nil {
		return 0, errors.IOError("list source chunks", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errors.IOError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errors.IOError("iterate chunk ids", err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE url = ?`, url); err != nil {
		return 0, errors.IOError("delete source chunks", err)
	}
	s.chunkCount -= len(ids)

	if err := s.text.Delete(ctx, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.vector.Remove(id)
	}

	return len(ids), nil
}

// SearchVectors returns the k nearest chunks to query by cosine
// distance, closest first. Chunks stored without an embedding never
// appear.
func (s *Store) SearchVectors(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.TimeoutError("vector search", err)
	}
	if len(query) != s.dimension {
		return nil, errors.DimensionError(s.dimension, len(query))
	}
	return s.vector.Search(query, k), nil
}

// SearchText runs the full-text index over pre-normalized terms.
func (s *Store) SearchText(ctx context.Context, terms []string, limit int) ([]*TextResult, error) {
	return s.text.Search(ctx, terms, limit)
}

// UpsertSourceRecord inserts or updates a source record. The tracked
// source counter moves only on a true insert.
func (s *Store) UpsertSourceRecord(ctx context.Context, rec *SourceRecord) error {
	if rec == nil || rec.URL == "" {
		return errors.ValidationError("source record with a non-empty URL is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("store is closed", nil)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sources WHERE url = ?`, rec.URL).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return errors.IOError("check source existence", err)
	}

	if exists {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sources SET content_hash = ?, modified_at = ?, chunk_count = ? WHERE url = ?`,
			rec.ContentHash, rec.ModifiedAt.Unix(), rec.ChunkCount, rec.URL)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sources (url, content_hash, modified_at, chunk_count) VALUES (?, ?, ?, ?)`,
			rec.URL, rec.ContentHash, rec.ModifiedAt.Unix(), rec.ChunkCount)
	}
	if err != nil {
		return errors.IOError("write source record", err)
	}
	if !exists {
		s.sourceCount++
	}
	return nil
}

// GetSourceRecord returns the record for url, or nil when untracked.
func (s *Store) GetSourceRecord(ctx context.Context, url string) (*SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec SourceRecord
	var modified int64
	err := s.db.QueryRowContext(ctx,
		`SELECT url, content_hash, modified_at, chunk_count FROM sources WHERE url = ?`,
		url).Scan(&rec.URL, &rec.ContentHash, &modified, &rec.ChunkCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOError("read source record", err)
	}
	rec.ModifiedAt = time.Unix(modified, 0)
	return &rec, nil
}

// RemoveSourceRecord deletes the record for url. The counter moves only
// when a row was actually deleted.
func (s *Store) RemoveSourceRecord(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE url = ?`, url)
	if err != nil {
		return errors.IOError("delete source record", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.sourceCount--
	}
	return nil
}

// ClearAll purges every chunk and source record from the row store and
// both indexes. The embedding dimension is retained.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks`)
	if err != nil {
		return errors.IOError("list chunks", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return errors.IOError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.IOError("iterate chunk ids", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return errors.IOError("clear chunks", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return errors.IOError("clear sources", err)
	}

	if len(ids) > 0 {
		if err := s.text.Delete(ctx, ids); err != nil {
			return err
		}
	}
	s.vector.Reset()
	s.chunkCount = 0
	s.sourceCount = 0

	s.logger.Info("store cleared", "removed_chunks", len(ids))
	return nil
}

// Close checkpoints the WAL and releases both indexes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)

	textErr := s.text.Close()
	dbErr := s.db.Close()
	if textErr != nil {
		return textErr
	}
	if dbErr != nil {
		return errors.IOError("close database", dbErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var hierarchy string
	var blob []byte
	err := row.Scan(&c.ChunkID, &c.URL, &c.Section, &hierarchy, &c.Content,
		&c.Hash, &c.ChunkIndex, &c.TotalChunks, &blob)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hierarchy), &c.HeadingHierarchy); err != nil {
		return nil, fmt.Errorf("decode heading hierarchy: %w", err)
	}
	if vec := decodeVector(blob); len(vec) > 0 && !isZeroVector(vec) {
		c.Embedding = vec
	}
	return &c, nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
