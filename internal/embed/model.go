package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultModelName is the local embedding model identifier.
	DefaultModelName = "nomic-embed-text-v1.5"

	// DefaultModelFile is the quantized model file downloaded on demand.
	DefaultModelFile = "nomic-embed-text-v1.5.Q8_0.gguf"

	// DefaultModelURL is the upstream location of the model weights.
	DefaultModelURL = "https://huggingface.co/nomic-ai/nomic-embed-text-v1.5-GGUF/resolve/main/nomic-embed-text-v1.5.Q8_0.gguf"

	// DefaultModelSize is the approximate model size in bytes (~146MB),
	// used for progress reporting when the server omits Content-Length.
	DefaultModelSize = 146 * 1024 * 1024

	// ModelDownloadTimeout is the maximum time to wait for a download.
	ModelDownloadTimeout = 30 * time.Minute
)

// ProgressFunc receives download progress. It is a side-channel: callers
// get progress events independent of the call's return value.
type ProgressFunc func(downloaded, total int64)

// ModelManager handles downloading and caching of local model weights.
type ModelManager struct {
	modelsDir string
	modelURL  string
	mu        sync.Mutex
}

// NewModelManager creates a model manager rooted at modelsDir
// (typically ~/.lodestar/models).
func NewModelManager(modelsDir string) *ModelManager {
	return &ModelManager{
		modelsDir: modelsDir,
		modelURL:  DefaultModelURL,
	}
}

// ModelPath returns the path of the cached model file.
func (m *ModelManager) ModelPath() string {
	return filepath.Join(m.modelsDir, DefaultModelFile)
}

// ModelExists checks if the model file is already cached.
func (m *ModelManager) ModelExists() bool {
	info, err := os.Stat(m.ModelPath())
	return err == nil && info.Size() > 0
}

// EnsureModel makes sure the model weights are available, downloading
// them under a cross-process lock if absent. Returns the model path.
func (m *ModelManager) EnsureModel(ctx context.Context, progressFn ProgressFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	modelPath := m.ModelPath()
	if info, err := os.Stat(modelPath); err == nil && info.Size() > 0 {
		return modelPath, nil
	}

	lock, err := newDownloadLock(m.modelsDir)
	if err != nil {
		return "", err
	}
	if err := lock.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { _ = lock.release() }()

	// Another process may have finished the download while we waited.
	if info, err := os.Stat(modelPath); err == nil && info.Size() > 0 {
		return modelPath, nil
	}

	err = DownloadWithRetry(ctx, DefaultRetryConfig(), func() error {
		return m.downloadModel(ctx, modelPath, progressFn)
	})
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}

	return modelPath, nil
}

// downloadModel streams the weights to a temp file and renames it into
// place so a partial download never looks like a cached model.
func (m *ModelManager) downloadModel(ctx context.Context, destPath string, progressFn ProgressFunc) error {
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.modelURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lodestar/1.0")

	client := &http.Client{Timeout: ModelDownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		totalSize = DefaultModelSize
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write: %w", writeErr)
			}
			downloaded += int64(n)
			if progressFn != nil {
				progressFn(downloaded, totalSize)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// DeleteModel removes the cached model file.
func (m *ModelManager) DeleteModel() error {
	return os.Remove(m.ModelPath())
}
