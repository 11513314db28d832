//go:build linux

package watch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"emlwatch/internal/config"
	"emlwatch/internal/logging"
)

const nativeBackend = config.BackendInotify

const inotifyMask = unix.IN_CREATE | unix.IN_CLOSE_WRITE | unix.IN_ONLYDIR

// inotifySource reads raw inotify events. The descriptor is non-blocking and
// wrapped in an *os.File so reads park in the runtime poller and Close
// unblocks them.
type inotifySource struct {
	fd     int
	file   *os.File
	logger *slog.Logger

	mu      sync.Mutex
	watches map[int]string

	notifications chan Notification
	errors        chan error
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

func newInotifySource(logger *slog.Logger) (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	s := &inotifySource{
		fd:            fd,
		file:          os.NewFile(uintptr(fd), "inotify"),
		logger:        logging.NewComponentLogger(logger, "inotify"),
		watches:       make(map[int]string),
		notifications: make(chan Notification, notificationBuffer),
		errors:        make(chan error, 1),
		done:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *inotifySource) Add(dir string) error {
	select {
	case <-s.done:
		return os.ErrClosed
	default:
	}
	wd, err := unix.InotifyAddWatch(s.fd, dir, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify add %s: %w", dir, err)
	}
	s.mu.Lock()
	s.watches[wd] = filepath.Clean(dir)
	s.mu.Unlock()
	return nil
}

func (s *inotifySource) Notifications() <-chan Notification { return s.notifications }

func (s *inotifySource) Errors() <-chan error { return s.errors }

func (s *inotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.file.Close()
		s.wg.Wait()
	})
	return err
}

// readLoop is the only sender on s.notifications. A read failure other than
// Close is terminal, so the channel is closed to stop the consumer.
func (s *inotifySource) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		n, err := s.file.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			s.sendError(fmt.Errorf("inotify read: %w", err))
			close(s.notifications)
			return
		}
		if !s.dispatchEvents(buf[:n]) {
			return
		}
	}
}

// dispatchEvents decodes a read buffer. It returns false once the source closes.
func (s *inotifySource) dispatchEvents(buf []byte) bool {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		wd := int(int32(binary.NativeEndian.Uint32(buf[offset:])))
		mask := binary.NativeEndian.Uint32(buf[offset+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12:]))
		nameStart := offset + unix.SizeofInotifyEvent
		if nameStart+nameLen > len(buf) {
			return true
		}
		name := string(bytes.TrimRight(buf[nameStart:nameStart+nameLen], "\x00"))
		offset = nameStart + nameLen

		if mask&unix.IN_Q_OVERFLOW != 0 {
			if !s.send(Notification{Op: OpOverflow}) {
				return false
			}
			continue
		}

		s.mu.Lock()
		dir, ok := s.watches[wd]
		if mask&unix.IN_IGNORED != 0 {
			delete(s.watches, wd)
		}
		s.mu.Unlock()
		if ok && mask&unix.IN_IGNORED != 0 {
			s.logger.Debug("kernel dropped watch", logging.String("path", dir))
		}
		if !ok || name == "" {
			continue
		}

		path := filepath.Join(dir, name)
		var n Notification
		switch {
		case mask&unix.IN_CREATE != 0 && mask&unix.IN_ISDIR != 0:
			n = Notification{Path: path, Op: OpDirCreated}
		case mask&unix.IN_CLOSE_WRITE != 0:
			n = Notification{Path: path, Op: OpWriteClosed}
		default:
			continue
		}
		if !s.send(n) {
			return false
		}
	}
	return true
}

func (s *inotifySource) send(n Notification) bool {
	select {
	case s.notifications <- n:
		return true
	case <-s.done:
		return false
	}
}

func (s *inotifySource) sendError(err error) {
	select {
	case s.errors <- err:
	case <-s.done:
	}
}
