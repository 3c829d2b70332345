package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-dev/lodestar/internal/chunk"
)

func sampleChunks() []*chunk.Chunk {
	return []*chunk.Chunk{
		{ChunkID: "d-0", Section: "Overview", ChunkIndex: 0, TotalChunks: 2, Content: "First part."},
		{ChunkID: "d-1", ChunkIndex: 1, TotalChunks: 2, Content: "Second part."},
	}
}

func TestWriteChunksText(t *testing.T) {
	var buf bytes.Buffer

	writeChunksText(&buf, sampleChunks())

	out := buf.String()
	assert.Contains(t, out, "[1/2] Overview")
	assert.Contains(t, out, "First part.")
	assert.Contains(t, out, "[2/2]\n")
	assert.Contains(t, out, "Second part.")
}

func TestWriteChunksJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeChunksJSON(&buf, "file:///d.md", sampleChunks()))

	var out struct {
		URL    string `json:"url"`
		Count  int    `json:"count"`
		Chunks []struct {
			ChunkID    string `json:"chunk_id"`
			ChunkIndex int    `json:"chunk_index"`
		} `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, "file:///d.md", out.URL)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, "d-0", out.Chunks[0].ChunkID)
	assert.Equal(t, 1, out.Chunks[1].ChunkIndex)
}
