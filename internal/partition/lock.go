package partition

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// dirLock enforces the single-writer-per-directory rule: opening the same
// partition directory from two processes is undefined, so each resident
// partition holds an exclusive advisory lock on its own directory for as
// long as it stays in the LRU cache.
type dirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newDirLock(dir string) *dirLock {
	path := filepath.Join(dir, ".veclite.lock")
	return &dirLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking.
func (l *dirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring partition lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Idempotent.
func (l *dirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
