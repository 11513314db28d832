package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"emlwatch/internal/config"
)

// ErrLocked is returned when another process holds the daemon lock.
var ErrLocked = errors.New("another emlwatch instance owns the watched tree")

// AcquireLock takes the single-owner lock for cfg without blocking.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	path := cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

// LockHeld reports whether some process currently holds the lock for cfg.
func LockHeld(cfg *config.Config) (bool, error) {
	path := cfg.LockPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
