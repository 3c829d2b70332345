package index

import (
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// maxFileSize caps how much of a single file the runner will read.
const maxFileSize = 2 << 20 // 2 MiB

var indexableExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
	".txt":      true,
}

// DiscoverDocuments walks root and loads every indexable text file.
// Hidden directories, oversized files, binary content and files that
// fail to read are skipped (the latter with a warning), so one bad
// entry never empties the run. A root that is itself a file yields at
// most one document.
func DiscoverDocuments(root string) ([]Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.IOError("stat "+root, err)
	}

	if !info.IsDir() {
		doc, ok, err := loadDocument(root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []Document{doc}, nil
	}

	var docs []Document
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// One unreadable entry must not sink the whole walk.
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !indexableExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		doc, ok, loadErr := loadDocument(path)
		if loadErr != nil {
			// A document that cannot be read is skipped, not fatal for
			// the run; the rest of the tree still gets indexed.
			slog.Warn("skipping unreadable document", "path", path, "error", loadErr)
			return nil
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errors.IOError("walk "+root, walkErr)
	}

	return docs, nil
}

// loadDocument reads path into a Document. The second return is false
// when the file was skipped rather than failed.
func loadDocument(path string) (Document, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, false, errors.IOError("stat "+path, err)
	}
	if info.Size() > maxFileSize {
		return Document{}, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false, errors.IOError("read "+path, err)
	}
	if isBinaryContent(content) {
		return Document{}, false, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, false, errors.IOError("resolve "+path, err)
	}

	return Document{
		URL:     "file://" + filepath.ToSlash(abs),
		Content: string(content),
	}, true, nil
}

// isBinaryContent reports whether data looks binary by checking for a
// NUL byte in the leading bytes.
func isBinaryContent(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
