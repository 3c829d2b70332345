package embed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// LocalProvider generates embeddings without network calls at query time.
// Model weights are downloaded once (flock-guarded, atomic rename) and
// inference runs on an isolated worker goroutine. The deterministic hash
// encoder stands in for native GGUF inference over the cached weights.
type LocalProvider struct {
	manager    *ModelManager
	progressFn ProgressFunc
	batchDelay time.Duration

	mu      sync.Mutex
	worker  *inferenceWorker
	started bool
	closed  bool

	nextID atomic.Uint64
}

// NewLocalProvider creates a local provider caching weights in modelsDir.
func NewLocalProvider(modelsDir string) *LocalProvider {
	return &LocalProvider{
		manager:    NewModelManager(modelsDir),
		batchDelay: DefaultBatchDelay,
	}
}

// SetProgressFunc installs the download progress side-channel. Progress
// events arrive asynchronously and are independent of any return value.
func (p *LocalProvider) SetProgressFunc(fn ProgressFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progressFn = fn
}

// ensureStarted downloads the model if needed and starts the worker.
func (p *LocalProvider) ensureStarted(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.ProviderStateError("local provider is closed")
	}
	if p.started {
		return nil
	}

	if _, err := p.manager.EnsureModel(ctx, p.progressFn); err != nil {
		return errors.ProviderError("failed to prepare local model", err)
	}

	p.worker = newInferenceWorker(LocalDimensions)
	p.started = true
	return nil
}

// Embed generates the embedding for a single text on the worker.
func (p *LocalProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := p.ensureStarted(ctx); err != nil {
		return nil, err
	}

	req := inferenceRequest{
		id:    p.nextID.Add(1),
		text:  text,
		reply: make(chan inferenceResponse, 1),
	}

	select {
	case p.worker.requests <- req:
	case <-ctx.Done():
		return nil, errors.TimeoutError("embedding request exceeded deadline", ctx.Err())
	case <-p.worker.done:
		return nil, errors.ProviderStateError("inference worker has terminated")
	}

	select {
	case resp := <-req.reply:
		if resp.id != req.id {
			return nil, errors.InternalError("inference response id mismatch", nil)
		}
		if resp.err != nil {
			return nil, errors.ProviderError("local inference failed", resp.err)
		}
		return &Embedding{Vector: resp.vector, TokenCount: resp.tokens}, nil
	case <-ctx.Done():
		return nil, errors.TimeoutError("embedding request exceeded deadline", ctx.Err())
	case <-p.worker.done:
		return nil, errors.ProviderStateError("inference worker has terminated")
	}
}

// EmbedBatch generates embeddings sequentially; any failure aborts.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureStarted(ctx); err != nil {
		return nil, err
	}
	return embedSequential(ctx, p, texts, p.batchDelay)
}

// ValidateKey for the local variant means "ensure the model is loaded":
// it downloads the weights if absent, reporting progress through the
// side-channel installed with SetProgressFunc.
func (p *LocalProvider) ValidateKey(ctx context.Context) (bool, error) {
	if err := p.ensureStarted(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Dimensions returns the embedding vector width.
func (p *LocalProvider) Dimensions() int {
	return LocalDimensions
}

// ModelName returns the model identifier.
func (p *LocalProvider) ModelName() string {
	return DefaultModelName
}

// Close stops the worker and releases resources. Idempotent.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.started {
		p.worker.stop()
		p.started = false
	}
	return nil
}
