package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestGetFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	assert.Equal(t, int64(5), getFileSize(path))
	assert.Equal(t, int64(0), getFileSize(filepath.Join(dir, "missing")))
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("123"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("4567"), 0o644))

	assert.Equal(t, int64(7), getDirSize(dir))
	assert.Equal(t, int64(0), getDirSize(filepath.Join(dir, "missing")))
}

func TestWriteStatusText(t *testing.T) {
	var buf bytes.Buffer

	writeStatusText(&buf, statusInfo{
		DataDir:     "/home/u/.lodestar",
		Documents:   3,
		Chunks:      42,
		Dimension:   256,
		Provider:    "static",
		Model:       "text-embedding-3-small",
		TextBackend: "sqlite",
		IndexSize:   2048,
	})

	out := buf.String()
	assert.Contains(t, out, "Documents:    3")
	assert.Contains(t, out, "Chunks:       42")
	assert.Contains(t, out, "Dimension:    256")
	assert.Contains(t, out, "static (text-embedding-3-small)")
	assert.Contains(t, out, "2.0 KiB")
}
