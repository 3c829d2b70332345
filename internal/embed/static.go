package embed

import (
	"context"
	"sync"
	"time"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// StaticProvider generates embeddings with the hash encoder alone.
// Works without network access or model downloads; deterministic and fast
// with reduced semantic quality.
type StaticProvider struct {
	batchDelay time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewStaticProvider creates a static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{batchDelay: DefaultBatchDelay}
}

// Embed generates the embedding for a single text.
func (p *StaticProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.ProviderStateError("static provider is closed")
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.TimeoutError("embedding cancelled", err)
	}

	return &Embedding{
		Vector:     hashEncode(text, StaticDimensions),
		TokenCount: estimateTokens(text),
	}, nil
}

// EmbedBatch generates embeddings sequentially; any failure aborts.
func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedSequential(ctx, p, texts, p.batchDelay)
}

// ValidateKey always succeeds: the static provider has no credentials.
func (p *StaticProvider) ValidateKey(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed, nil
}

// Dimensions returns the embedding vector width.
func (p *StaticProvider) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (p *StaticProvider) ModelName() string {
	return "static-hash"
}

// Close releases resources.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// embedSequential runs Embed for each text in order with an inter-call
// delay. The first failure aborts the whole batch.
func embedSequential(ctx context.Context, p Provider, texts []string, delay time.Duration) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.TimeoutError("batch embedding cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb.Vector
	}
	return results, nil
}
