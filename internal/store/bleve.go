package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/errors"
)

const chunkAnalyzerName = "chunk_analyzer"

// BleveIndex is the alternative full-text backend.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type bleveDocument struct {
	Content  string `json:"content"`
	Section  string `json:"section"`
	Headings string `json:"headings"`
	URL      string `json:"url"`
}

// bleveSearchFields are the fields a query term may match in.
var bleveSearchFields = []string{"content", "section", "headings", "url"}

// NewBleveIndex opens or creates the index directory at path. An empty
// path creates an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createChunkMapping()
	if err != nil {
		return nil, errors.InternalError("create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, errors.IOError("create text index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, errors.IOError("open text index "+path, err)
	}

	return &BleveIndex{index: idx}, nil
}

func createChunkMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(chunkAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, err
	}

	indexMapping.DefaultAnalyzer = chunkAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces chunks in one batch. Re-indexing an existing
// ID replaces the prior document.
func (b *BleveIndex) Index(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.InternalError("text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := bleveDocument{
			Content:  c.Content,
			Section:  c.Section,
			Headings: strings.Join(c.HeadingHierarchy, " > "),
			URL:      c.URL,
		}
		if err := batch.Index(c.ChunkID, doc); err != nil {
			return errors.IOError("batch chunk "+c.ChunkID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return errors.IOError("execute index batch", err)
	}
	return nil
}

// Search matches chunks containing every term as a prefix, best first.
func (b *BleveIndex) Search(ctx context.Context, terms []string, limit int) ([]*TextResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errors.InternalError("text index is closed", nil)
	}
	if len(terms) == 0 || limit <= 0 {
		return []*TextResult{}, nil
	}

	// Prefix queries bypass the analyzer, so terms are lowercased here
	// to line up with the indexed tokens. Every term must match, in any
	// of the searchable fields.
	perTerm := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		lowered := strings.ToLower(t)
		fields := make([]query.Query, 0, len(bleveSearchFields))
		for _, f := range bleveSearchFields {
			pq := bleve.NewPrefixQuery(lowered)
			pq.SetField(f)
			fields = append(fields, pq)
		}
		perTerm = append(perTerm, bleve.NewDisjunctionQuery(fields...))
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(perTerm...))
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.IOError("full-text search", err)
	}

	results := make([]*TextResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &TextResult{ChunkID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes the given chunk IDs in one batch.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.InternalError("text index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return errors.IOError("execute delete batch", err)
	}
	return nil
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.index.Close(); err != nil {
		return errors.IOError("close text index", err)
	}
	return nil
}
