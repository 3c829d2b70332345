package ui

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Strings(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageDiscover, "Discovering", "SCAN"},
		{StageDownload, "Downloading", "FETCH"},
		{StageIndex, "Indexing", "INDEX"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.stage.String())
		assert.Equal(t, tt.icon, tt.stage.Icon())
	}
}

func TestPlainRenderer_Progress(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageIndex, Current: 3, Total: 10, Document: "docs/guide.md"})
	r.UpdateProgress(ProgressEvent{Stage: StageDiscover, Message: "walking tree"})
	// No total and no message prints nothing.
	r.UpdateProgress(ProgressEvent{Stage: StageIndex})

	out := buf.String()
	assert.Contains(t, out, "[INDEX] 3/10 - docs/guide.md")
	assert.Contains(t, out, "[SCAN] walking tree")
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("\n")))
}

func TestPlainRenderer_Errors(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.AddError(ErrorEvent{Document: "bad.md", Err: fmt.Errorf("unreadable")})
	r.AddError(ErrorEvent{Err: fmt.Errorf("slow provider"), IsWarn: true})

	out := buf.String()
	assert.Contains(t, out, "ERROR: bad.md: unreadable")
	assert.Contains(t, out, "WARN: slow provider")
}

func TestPlainRenderer_Complete(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.Complete(CompletionStats{
		Indexed:  4,
		Skipped:  2,
		Failed:   1,
		Chunks:   37,
		Duration: 1500 * time.Millisecond,
	})
	require.NoError(t, r.Stop())

	out := buf.String()
	assert.Contains(t, out, "4 indexed")
	assert.Contains(t, out, "2 skipped")
	assert.Contains(t, out, "37 chunks")
	assert.Contains(t, out, "(1 failed)")
}

func TestNewRenderer_FallsBackToPlain(t *testing.T) {
	// A bytes.Buffer is never a TTY.
	var buf bytes.Buffer
	r := NewRenderer(Config{Output: &buf})
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)

	r = NewRenderer(Config{Output: &buf, ForcePlain: true})
	_, ok = r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_NonFileWriter(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.md", truncatePath("short.md", 20))
	assert.Equal(t, "...eeply/nested/file.md", truncatePath("docs/deeply/nested/file.md", 23))
	assert.Equal(t, "ab", truncatePath("ab", 3))
}
