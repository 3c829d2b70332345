package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
)

// FTS5Index is the default full-text backend: an SQLite FTS5 virtual
// table with the unicode61 tokenizer, relevance scored by bm25().
type FTS5Index struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewFTS5Index opens or creates the index at path.
func NewFTS5Index(path string) (*FTS5Index, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOError("open text index "+path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	schema := `CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		chunk_id UNINDEXED,
		content,
		section,
		heading_hierarchy,
		url,
		tokenize='unicode61'
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.IOError("create fts5 table", err)
	}

	return &FTS5Index{db: db}, nil
}

// Index replaces each chunk via delete-then-insert inside one
// transaction so a chunk is never doubled.
func (f *FTS5Index) Index(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.InternalError("text index is closed", nil)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.IOError("begin text index transaction", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return errors.IOError("prepare delete", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_chunks (chunk_id, content, section, heading_hierarchy, url)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.IOError("prepare insert", err)
	}
	defer ins.Close()

	for _, c := range chunks {
		if _, err := del.ExecContext(ctx, c.ChunkID); err != nil {
			return errors.IOError("delete indexed chunk", err)
		}
		headings := strings.Join(c.HeadingHierarchy, " > ")
		if _, err := ins.ExecContext(ctx, c.ChunkID, c.Content, c.Section, headings, c.URL); err != nil {
			return errors.IOError("insert indexed chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.IOError("commit text index transaction", err)
	}
	return nil
}

// Search matches chunks containing every term as a prefix, best first.
// bm25() reports lower values for better matches, so the score is
// negated to make higher mean better.
func (f *FTS5Index) Search(ctx context.Context, terms []string, limit int) ([]*TextResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, errors.InternalError("text index is closed", nil)
	}
	if len(terms) == 0 || limit <= 0 {
		return []*TextResult{}, nil
	}

	match := buildMatchExpr(terms)
	rows, err := f.db.QueryContext(ctx,
		`SELECT chunk_id, bm25(fts_chunks) AS score
		 FROM fts_chunks WHERE fts_chunks MATCH ?
		 ORDER BY score LIMIT ?`, match, limit)
	if err != nil {
		// A query the tokenizer cannot parse is no matches, not a failure.
		if isFTSSyntaxError(err) {
			return []*TextResult{}, nil
		}
		return nil, errors.IOError("full-text search", err)
	}
	defer rows.Close()

	var results []*TextResult
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, errors.IOError("scan text result", err)
		}
		r.Score = -r.Score
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOError("iterate text results", err)
	}
	return results, nil
}

// Delete removes the given chunk IDs.
func (f *FTS5Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.InternalError("text index is closed", nil)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.IOError("begin text index transaction", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return errors.IOError("prepare delete", err)
	}
	defer del.Close()

	for _, id := range chunkIDs {
		if _, err := del.ExecContext(ctx, id); err != nil {
			return errors.IOError("delete indexed chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.IOError("commit text index transaction", err)
	}
	return nil
}

// Close checkpoints and closes the underlying database.
func (f *FTS5Index) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	_, _ = f.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	if err := f.db.Close(); err != nil {
		return errors.IOError("close text index", err)
	}
	return nil
}

// buildMatchExpr joins terms into an FTS5 MATCH expression where every
// term is a quoted prefix: `"vector"* AND "search"*`.
func buildMatchExpr(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		escaped := strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+escaped+`"*`)
	}
	return strings.Join(quoted, " AND ")
}

func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "malformed MATCH") ||
		strings.Contains(msg, "unknown special query")
}
