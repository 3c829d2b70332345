// Package chunk splits document text into token-bounded, heading-aware
// chunks with deterministic identifiers.
package chunk

// Chunk is the atomic retrievable unit.
type Chunk struct {
	// ChunkID is the SHA-256 hash of Content. Identical content under an
	// identical heading hierarchy always yields the same id.
	ChunkID string

	// Content is the heading breadcrumb prefix ("[Topic: A > B]")
	// followed by the trimmed chunk text.
	Content string

	// Section is the deepest heading in the chunk's hierarchy, or
	// DefaultSection if the document has no headings.
	Section string

	// HeadingHierarchy is the ordered list of ancestor headings,
	// shallow to deep.
	HeadingHierarchy []string

	// ChunkIndex is the chunk's position within its source document.
	ChunkIndex int

	// TotalChunks is the number of chunks produced from the source
	// document. All chunks of one document share the same value.
	TotalChunks int

	// URL is the stable source identifier (file://path or a remote URL).
	URL string

	// Hash doubles ChunkID for change detection.
	Hash string

	// Embedding is the chunk's vector, or nil when not yet embedded.
	Embedding []float32
}
