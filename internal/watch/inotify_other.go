//go:build !linux

package watch

import (
	"fmt"
	"log/slog"

	"emlwatch/internal/config"
)

const nativeBackend = config.BackendFsnotify

func newInotifySource(*slog.Logger) (Source, error) {
	return nil, fmt.Errorf("inotify: %w", ErrUnsupportedBackend)
}
