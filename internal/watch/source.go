package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"emlwatch/internal/config"
)

// Op classifies a notification.
type Op uint8

const (
	// OpDirCreated reports a new directory entry that is itself a directory.
	OpDirCreated Op = iota + 1
	// OpWriteClosed reports that a file finished being written.
	OpWriteClosed
	// OpOverflow reports that the backend dropped events.
	OpOverflow
)

func (op Op) String() string {
	switch op {
	case OpDirCreated:
		return "dir_created"
	case OpWriteClosed:
		return "write_closed"
	case OpOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Notification is one classified filesystem event. Path is empty for OpOverflow.
type Notification struct {
	Path string
	Op   Op
}

// Source is a notification backend. Add subscribes a single directory; it
// does not recurse. A backend that fails for good closes Notifications after
// reporting the cause on Errors.
type Source interface {
	Add(dir string) error
	Notifications() <-chan Notification
	Errors() <-chan error
	Close() error
}

// ErrUnsupportedBackend is returned when the requested backend is not
// available on this platform.
var ErrUnsupportedBackend = errors.New("notification backend not supported on this platform")

const notificationBuffer = 256

// Open creates the Source named by backend. settle is the quiet period the
// fsnotify backend waits before reporting a write as complete.
func Open(backend string, settle time.Duration, logger *slog.Logger) (Source, error) {
	switch backend {
	case "", config.BackendAuto:
		backend = nativeBackend
	}
	switch backend {
	case config.BackendInotify:
		return newInotifySource(logger)
	case config.BackendFsnotify:
		return newFsnotifySource(settle, logger)
	default:
		return nil, fmt.Errorf("watch backend %q: %w", backend, ErrUnsupportedBackend)
	}
}
