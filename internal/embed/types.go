// Package embed turns chunk text into fixed-length numeric vectors.
// It provides remote (HTTP API), local (downloaded model), and static
// (hash-based) provider variants behind one interface.
package embed

import (
	"context"
	"math"
	"strings"
	"time"
)

const (
	// RemoteDimensions is the default vector width of the remote provider,
	// and the legacy width assumed for stores predating dimension metadata.
	RemoteDimensions = 1536

	// LocalDimensions is the vector width of the local provider.
	LocalDimensions = 768

	// StaticDimensions is the vector width of the static provider.
	StaticDimensions = 256

	// DefaultBatchDelay is the pause between consecutive requests in a
	// batch, respecting upstream rate limits.
	DefaultBatchDelay = 50 * time.Millisecond

	// DefaultRequestTimeout bounds a single embedding request.
	DefaultRequestTimeout = 60 * time.Second
)

// Embedding is the result of embedding one text.
type Embedding struct {
	Vector     []float32
	TokenCount int
}

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// EmbedBatch generates embeddings sequentially with a small inter-call
	// delay. A failure for any item aborts the batch; there is no partial
	// success.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ValidateKey verifies the provider is usable. The remote variant
	// issues one minimal embedding request; the local variant ensures the
	// model is downloaded and loaded.
	ValidateKey(ctx context.Context) (bool, error)

	// Dimensions returns the embedding vector width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases underlying resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// estimateTokens approximates the token count of a text.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}
