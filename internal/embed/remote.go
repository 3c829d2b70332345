package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// RemoteOptions configures the remote provider.
type RemoteOptions struct {
	Endpoint   string        // Base URL of the embeddings API
	APIKey     string        // Bearer token
	Model      string        // Model name sent with each request
	Dimensions int           // Expected vector width (default: RemoteDimensions)
	BatchDelay time.Duration // Pause between batch items (default: DefaultBatchDelay)
	Timeout    time.Duration // Per-request timeout (default: DefaultRequestTimeout)
}

// RemoteProvider generates embeddings through an OpenAI-compatible HTTP
// API (POST {endpoint}/v1/embeddings with a Bearer token).
//
// A 401 response marks the credentials invalid; the flag is sticky, and
// every later call fails immediately without another network request
// until a fresh provider is constructed with new credentials.
type RemoteProvider struct {
	endpoint   string
	apiKey     string
	model      string
	dims       int
	batchDelay time.Duration
	client     *http.Client

	mu         sync.RWMutex
	keyInvalid bool
	closed     bool
}

// NewRemoteProvider creates a remote provider.
func NewRemoteProvider(opts RemoteOptions) *RemoteProvider {
	if opts.Dimensions == 0 {
		opts.Dimensions = RemoteDimensions
	}
	if opts.BatchDelay == 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	return &RemoteProvider{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		dims:       opts.Dimensions,
		batchDelay: opts.BatchDelay,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// embeddingsRequest is the request payload for the embeddings API.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the response from the embeddings API.
type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates the embedding for a single text.
func (p *RemoteProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := p.checkState(); err != nil {
		return nil, err
	}
	return p.request(ctx, text)
}

// EmbedBatch generates embeddings sequentially with an inter-call delay to
// respect upstream rate limits. The first failure aborts the batch.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.checkState(); err != nil {
		return nil, err
	}
	return embedSequential(ctx, p, texts, p.batchDelay)
}

// ValidateKey issues one minimal embedding request. An invalid-key-shaped
// response flips the sticky invalid flag and returns false; any other
// error is re-raised, since it might be a transient upstream problem
// rather than a credential problem.
func (p *RemoteProvider) ValidateKey(ctx context.Context) (bool, error) {
	p.mu.RLock()
	invalid, closed := p.keyInvalid, p.closed
	p.mu.RUnlock()
	if closed {
		return false, errors.ProviderStateError("remote provider is closed")
	}
	if invalid {
		return false, nil
	}

	_, err := p.request(ctx, "ping")
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeAuth {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Dimensions returns the embedding vector width.
func (p *RemoteProvider) Dimensions() int {
	return p.dims
}

// ModelName returns the model identifier.
func (p *RemoteProvider) ModelName() string {
	return p.model
}

// Close releases resources.
func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.client.CloseIdleConnections()
	return nil
}

// checkState fails fast when the provider is closed or the credentials
// are known-invalid, without touching the network.
func (p *RemoteProvider) checkState() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.ProviderStateError("remote provider is closed")
	}
	if p.keyInvalid {
		return errors.ProviderStateError("credentials are known-invalid; replace the API key and create a new provider")
	}
	return nil
}

// request performs one embeddings API call for a single input.
func (p *RemoteProvider) request(ctx context.Context, text string) (*Embedding, error) {
	payload, err := json.Marshal(embeddingsRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, errors.InternalError("failed to marshal embeddings request", err)
	}

	url := p.endpoint + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("failed to create embeddings request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.TimeoutError("embedding request exceeded deadline", ctx.Err())
		}
		return nil, errors.ProviderError("embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		p.mu.Lock()
		p.keyInvalid = true
		p.mu.Unlock()
		return nil, errors.AuthError(
			fmt.Sprintf("embeddings API rejected credentials (status %d)", resp.StatusCode), nil).
			WithSuggestion("check the LODESTAR_API_KEY environment variable")
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.ProviderError(
			fmt.Sprintf("embeddings API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.ProviderError("failed to decode embeddings response", err)
	}
	if len(parsed.Data) == 0 {
		return nil, errors.ProviderError("embeddings response contained no vectors", nil)
	}

	raw := parsed.Data[0].Embedding
	if len(raw) != p.dims {
		return nil, errors.DimensionError(p.dims, len(raw))
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(text)
	}

	return &Embedding{Vector: vec, TokenCount: tokens}, nil
}
