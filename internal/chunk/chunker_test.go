package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words generates n distinct whitespace-separated tokens.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := NewChunker()

	assert.Empty(t, c.Chunk("", "file://empty.md"))
	assert.Empty(t, c.Chunk("   \n\n  ", "file://blank.md"))
}

func TestChunk_NoHeadings(t *testing.T) {
	c := NewChunker()

	chunks := c.Chunk("plain text without any structure", "file://plain.md")

	require.Len(t, chunks, 1)
	assert.Equal(t, DefaultSection, chunks[0].Section)
	assert.Empty(t, chunks[0].HeadingHierarchy)
	// No breadcrumb prefix when the hierarchy is empty.
	assert.Equal(t, "plain text without any structure", chunks[0].Content)
}

func TestChunk_BreadcrumbPrefix(t *testing.T) {
	c := NewChunker()
	doc := "# Guide\n## Setup\n" + words(200)

	chunks := c.Chunk(doc, "file://guide.md")

	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "[Topic: Guide > Setup]\n"))
	assert.Equal(t, "Setup", chunks[0].Section)
	assert.Equal(t, []string{"Guide", "Setup"}, chunks[0].HeadingHierarchy)
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c := NewChunker()
	doc := "# Overview\n" + words(160)

	first := c.Chunk(doc, "file://a.md")
	second := c.Chunk(doc, "file://a.md")

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ChunkID, second[0].ChunkID)
	assert.Equal(t, first[0].ChunkID, first[0].Hash)
}

func TestChunk_SharedHierarchyAndTotals(t *testing.T) {
	// Two sections under one top-level heading: both chunks carry the
	// ancestor and agree on TotalChunks.
	c := NewChunker()
	doc := "# Overview\n" + words(200) + "\n## Details\n" + words(200)

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 2)
	for i, ch := range chunks {
		assert.Equal(t, "Overview", ch.HeadingHierarchy[0])
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, 2, ch.TotalChunks)
	}
	assert.Equal(t, "Overview", chunks[0].Section)
	assert.Equal(t, "Details", chunks[1].Section)
}

func TestChunk_SmallSectionsMergeToCommonAncestor(t *testing.T) {
	// Two tiny sibling sections merge into one chunk attributed to their
	// shared parent, not to either sibling.
	c := NewChunker()
	doc := "# Root\n## First\nalpha beta\n## Second\ngamma delta"

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Root"}, chunks[0].HeadingHierarchy)
	assert.Equal(t, "Root", chunks[0].Section)
	assert.Contains(t, chunks[0].Content, "alpha beta")
	assert.Contains(t, chunks[0].Content, "gamma delta")
}

func TestChunk_ShallowerHeadingFlushesSmallBuffer(t *testing.T) {
	// A new top-level heading flushes a small buffer instead of merging
	// content across the section boundary.
	c := NewChunker()
	doc := "# First\n## Deep\nalpha beta\n# Second\ngamma delta"

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"First", "Deep"}, chunks[0].HeadingHierarchy)
	assert.Contains(t, chunks[0].Content, "alpha beta")
	assert.Equal(t, []string{"Second"}, chunks[1].HeadingHierarchy)
	assert.Contains(t, chunks[1].Content, "gamma delta")
}

func TestChunk_SkippedHeadingLevelsStillFlushSiblings(t *testing.T) {
	// # followed directly by ### leaves the stack shallower than the raw
	// heading level. A later ## sibling is still shallower than the ###
	// content, so the small buffer flushes instead of merging across it.
	c := NewChunker()
	doc := "# Root\n### Deep\nalpha beta\n## Side\ngamma delta"

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "alpha beta")
	assert.NotContains(t, chunks[0].Content, "gamma delta")
	assert.Equal(t, []string{"Root", "Side"}, chunks[1].HeadingHierarchy)
	assert.Contains(t, chunks[1].Content, "gamma delta")
}

func TestChunk_HeadingStackTruncation(t *testing.T) {
	c := NewChunker()
	doc := "# A\n## B\n### C\n" + words(200) + "\n## D\n" + words(200)

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"A", "B", "C"}, chunks[0].HeadingHierarchy)
	// The level-2 heading truncates the deeper stack entries.
	assert.Equal(t, []string{"A", "D"}, chunks[1].HeadingHierarchy)
}

func TestChunk_OversizedBufferSplitsWithOverlap(t *testing.T) {
	c := NewChunkerWithOptions(Options{MinTokens: 10, MaxTokens: 50, OverlapPercent: 10})
	doc := "# Big\n" + words(120)

	chunks := c.Chunk(doc, "file://big.md")

	// Windows of 50 tokens advancing by 45: [0,50) [45,95) [90,120).
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, []string{"Big"}, ch.HeadingHierarchy)
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, 3, ch.TotalChunks)
	}
	// Consecutive windows share the overlap region.
	assert.Contains(t, chunks[0].Content, "word45")
	assert.Contains(t, chunks[1].Content, "word45")
	assert.Contains(t, chunks[1].Content, "word90")
	assert.Contains(t, chunks[2].Content, "word90")
}

func TestChunk_ForceFlushAtEOF(t *testing.T) {
	// Trailing content under the merge threshold still becomes a chunk.
	c := NewChunker()
	doc := "# Tail\nshort ending"

	chunks := c.Chunk(doc, "file://tail.md")

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "short ending")
}

func TestChunk_HeadingAnchorsAndLinksStripped(t *testing.T) {
	c := NewChunker()
	doc := "# [Install](https://example.com/install) {#install}\ncontent here"

	chunks := c.Chunk(doc, "file://doc.md")

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Install"}, chunks[0].HeadingHierarchy)
	assert.Equal(t, "Install", chunks[0].Section)
}

func TestChunk_URLPropagated(t *testing.T) {
	c := NewChunker()

	chunks := c.Chunk("# H\nsome text", "file://src.md")

	require.Len(t, chunks, 1)
	assert.Equal(t, "file://src.md", chunks[0].URL)
}
