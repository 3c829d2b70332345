package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-dev/lodestar/internal/chunk"
	"github.com/lodestar-dev/lodestar/internal/search"
)

func sampleResults() []*search.ScoredChunk {
	distance := float32(0.12)
	return []*search.ScoredChunk{
		{
			Chunk: &chunk.Chunk{
				ChunkID: "doc-0",
				URL:     "file:///docs/guide.md",
				Section: "Installation",
				Content: "Install the binary and run it\n\nonce from the project root.",
			},
			RRFScore:  0.0328,
			Distance:  &distance,
			MatchType: search.MatchHybrid,
		},
		{
			Chunk: &chunk.Chunk{
				ChunkID: "doc-1",
				URL:     "file:///docs/guide.md",
				Content: "Troubleshooting notes.",
			},
			RRFScore:  0.0164,
			MatchType: search.MatchKeyword,
		},
	}
}

func TestWriteSearchText(t *testing.T) {
	var buf bytes.Buffer

	writeSearchText(&buf, "install", sampleResults())

	out := buf.String()
	assert.Contains(t, out, `2 results for "install"`)
	assert.Contains(t, out, "1. file:///docs/guide.md · Installation")
	assert.Contains(t, out, "[hybrid] score=0.0328")
	// Newlines inside content are collapsed in the snippet.
	assert.Contains(t, out, "Install the binary and run it once from the project root.")
	assert.Contains(t, out, "2. file:///docs/guide.md\n")
}

func TestWriteSearchText_NoResults(t *testing.T) {
	var buf bytes.Buffer

	writeSearchText(&buf, "nothing", nil)

	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestWriteSearchJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeSearchJSON(&buf, "install", sampleResults()))

	var out struct {
		Query   string `json:"query"`
		Count   int    `json:"count"`
		Results []struct {
			ChunkID   string   `json:"chunk_id"`
			Distance  *float32 `json:"distance"`
			MatchType string   `json:"match_type"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, "install", out.Query)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "doc-0", out.Results[0].ChunkID)
	require.NotNil(t, out.Results[0].Distance)
	assert.InDelta(t, 0.12, float64(*out.Results[0].Distance), 1e-6)
	// Keyword-only matches have no vector distance.
	assert.Nil(t, out.Results[1].Distance)
	assert.Equal(t, "keyword", out.Results[1].MatchType)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("short   text", 50))
	assert.Equal(t, "a b c", snippet("a\nb\tc", 50))

	long := strings.Repeat("word ", 100)
	got := snippet(long, 20)
	assert.Len(t, got, 23)
	assert.True(t, strings.HasSuffix(got, "..."))
}
