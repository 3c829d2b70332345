package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinChunkTokens is the merge threshold: a buffer smaller than this is
	// carried into the next section instead of flushed early.
	MinChunkTokens = 150

	// MaxChunkTokens is the hard upper bound per chunk.
	MaxChunkTokens = 1000

	// OverlapPercent is the token overlap between consecutive windows
	// when an oversized buffer is split.
	OverlapPercent = 10

	// DefaultSection labels chunks from documents without any headings.
	DefaultSection = "Document"
)

var (
	// Matches headings: # Title, ## Title, etc.
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

	// Matches inline links: [text](url) -> text
	linkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

	// Matches explicit heading anchors: {#anchor-id}
	anchorPattern = regexp.MustCompile(`\{#[^}]*\}`)
)

// Options configures chunking bounds.
type Options struct {
	MinTokens      int // Merge threshold (default: MinChunkTokens)
	MaxTokens      int // Hard upper bound per chunk (default: MaxChunkTokens)
	OverlapPercent int // Overlap between split windows (default: OverlapPercent)
}

// Chunker implements heading-aware document chunking.
type Chunker struct {
	opts Options
}

// NewChunker creates a chunker with default bounds.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(Options{})
}

// NewChunkerWithOptions creates a chunker with custom bounds.
func NewChunkerWithOptions(opts Options) *Chunker {
	if opts.MinTokens == 0 {
		opts.MinTokens = MinChunkTokens
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = MaxChunkTokens
	}
	if opts.OverlapPercent == 0 {
		opts.OverlapPercent = OverlapPercent
	}
	return &Chunker{opts: opts}
}

// chunkState tracks the scan position within one document.
type chunkState struct {
	// stack is the heading hierarchy active at the scan position.
	stack []string

	// buffer accumulates non-heading lines until a flush.
	buffer    []string
	bufTokens int

	// hierarchies records each distinct hierarchy the buffer has spanned,
	// used to find the common ancestor when a flush crosses siblings.
	hierarchies [][]string

	// level is the raw markdown level of the active heading. It can
	// exceed the stack depth when heading levels are skipped (# followed
	// by ###), so it is tracked separately.
	level int

	// deepest is the deepest raw heading level seen while the buffer
	// filled.
	deepest int

	chunks []*Chunk
}

// Chunk splits content into ordered, heading-aware chunks for sourceID.
// An empty document yields an empty list.
func (c *Chunker) Chunk(content, sourceID string) []*Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	st := &chunkState{}
	lines := strings.Split(content, "\n")

	for _, line := range lines {
		if match := headingPattern.FindStringSubmatch(line); match != nil {
			level := len(match[1])
			title := cleanHeading(match[2])

			// A small buffer merges into the next section unless the
			// incoming heading is shallower than the deepest heading
			// already buffered, which would merge across siblings.
			if st.bufTokens > 0 && (st.bufTokens >= c.opts.MinTokens || level < st.deepest) {
				c.flush(st, sourceID)
			}

			// Truncate the stack to level-1 entries, then set the new
			// heading at position level-1.
			if len(st.stack) > level-1 {
				st.stack = st.stack[:level-1]
			}
			st.stack = append(st.stack, title)
			st.level = level
			continue
		}

		st.buffer = append(st.buffer, line)
		st.bufTokens += countTokens(line)

		if st.level > st.deepest {
			st.deepest = st.level
		}
		if len(st.hierarchies) == 0 || !equalHierarchy(st.hierarchies[len(st.hierarchies)-1], st.stack) {
			st.hierarchies = append(st.hierarchies, cloneHierarchy(st.stack))
		}

		if st.bufTokens >= c.opts.MaxTokens {
			c.flush(st, sourceID)
		}
	}

	// Force-flush the tail even if under the merge threshold.
	c.flush(st, sourceID)

	for _, ch := range st.chunks {
		ch.TotalChunks = len(st.chunks)
	}
	return st.chunks
}

// flush converts the buffered lines into one or more chunks and resets the
// buffer state. The hierarchy stack survives the flush.
func (c *Chunker) flush(st *chunkState, sourceID string) {
	text := strings.TrimSpace(strings.Join(st.buffer, "\n"))
	hierarchy := c.topicHierarchy(st)

	st.buffer = nil
	st.bufTokens = 0
	st.hierarchies = nil
	st.deepest = 0

	if text == "" {
		return
	}

	words := strings.Fields(text)
	if len(words) <= c.opts.MaxTokens {
		st.chunks = append(st.chunks, c.newChunk(text, hierarchy, sourceID, len(st.chunks)))
		return
	}

	// Oversized buffer: fixed token windows with overlap, each carrying
	// the full hierarchy context.
	overlap := c.opts.MaxTokens * c.opts.OverlapPercent / 100
	step := c.opts.MaxTokens - overlap
	for start := 0; start < len(words); start += step {
		end := start + c.opts.MaxTokens
		if end > len(words) {
			end = len(words)
		}
		window := strings.Join(words[start:end], " ")
		st.chunks = append(st.chunks, c.newChunk(window, hierarchy, sourceID, len(st.chunks)))
		if end == len(words) {
			break
		}
	}
}

// topicHierarchy resolves the hierarchy for the buffer being flushed.
// A buffer that spanned multiple sibling headings is attributed to their
// common ancestor instead of whichever sibling happened to come last.
func (c *Chunker) topicHierarchy(st *chunkState) []string {
	if len(st.hierarchies) <= 1 {
		return cloneHierarchy(st.stack)
	}

	ancestor := st.hierarchies[0]
	for _, h := range st.hierarchies[1:] {
		ancestor = commonPrefix(ancestor, h)
	}
	return cloneHierarchy(ancestor)
}

// newChunk builds a chunk with its breadcrumb prefix and deterministic id.
func (c *Chunker) newChunk(text string, hierarchy []string, sourceID string, index int) *Chunk {
	content := text
	if len(hierarchy) > 0 {
		content = fmt.Sprintf("[Topic: %s]\n%s", strings.Join(hierarchy, " > "), text)
	}

	sum := sha256.Sum256([]byte(content))
	id := hex.EncodeToString(sum[:])

	section := DefaultSection
	if len(hierarchy) > 0 {
		section = hierarchy[len(hierarchy)-1]
	}

	return &Chunk{
		ChunkID:          id,
		Content:          content,
		Section:          section,
		HeadingHierarchy: hierarchy,
		ChunkIndex:       index,
		URL:              sourceID,
		Hash:             id,
	}
}

// cleanHeading strips inline links and anchor markers from a heading.
func cleanHeading(title string) string {
	title = linkPattern.ReplaceAllString(title, "$1")
	title = anchorPattern.ReplaceAllString(title, "")
	title = strings.TrimRight(title, "# ")
	return strings.TrimSpace(title)
}

// countTokens approximates tokens as whitespace-separated words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

func cloneHierarchy(h []string) []string {
	if len(h) == 0 {
		return nil
	}
	out := make([]string, len(h))
	copy(out, h)
	return out
}

func equalHierarchy(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
