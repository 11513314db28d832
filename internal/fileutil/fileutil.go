package fileutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// PublishAtomic writes content produced by write to tmpPath and renames it to
// finalPath. Nothing is ever visible at finalPath until the content is fully
// written and synced. tmpPath is removed on any failure; both paths must be on
// the same filesystem.
func PublishAtomic(tmpPath, finalPath string, mode os.FileMode, write func(io.Writer) error) (err error) {
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = write(out); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Exists reports whether path exists. Errors other than not-exist count as
// existing so callers do not overwrite something they cannot inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// WaitForFile polls for path every interval until it exists, timeout has
// elapsed, or ctx is done. It reports whether the file appeared.
func WaitForFile(ctx context.Context, path string, timeout, interval time.Duration) bool {
	if Exists(path) {
		return true
	}
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		if Exists(path) {
			return true
		}
		timer.Reset(interval)
	}
	return false
}
