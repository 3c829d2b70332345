package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often a blocked acquire re-checks the lock.
const lockRetryInterval = 250 * time.Millisecond

// downloadLock serializes model downloads across processes so two
// lodestar instances never fetch the same weights twice. The lock file
// lives at <dir>/.download.lock.
type downloadLock struct {
	fl *flock.Flock
}

// newDownloadLock creates the lock for a models directory, creating the
// directory if needed.
func newDownloadLock(dir string) (*downloadLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &downloadLock{
		fl: flock.New(filepath.Join(dir, ".download.lock")),
	}, nil
}

// acquire blocks until the lock is held or ctx is done.
func (l *downloadLock) acquire(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire download lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire download lock %s", l.fl.Path())
	}
	return nil
}

// release unlocks. Safe to call when the lock is not held.
func (l *downloadLock) release() error {
	return l.fl.Unlock()
}
