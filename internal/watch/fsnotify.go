package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"emlwatch/internal/logging"
)

const defaultSettle = 500 * time.Millisecond

// fsnotifySource adapts fsnotify. fsnotify has no portable close-write
// event, so a file is reported as written once no Create or Write event has
// been seen for it during the settle period.
type fsnotifySource struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	notifications chan Notification
	errors        chan error
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

func newFsnotifySource(settle time.Duration, logger *slog.Logger) (Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify init: %w", err)
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	s := &fsnotifySource{
		watcher:       watcher,
		settle:        settle,
		logger:        logging.NewComponentLogger(logger, "fsnotify"),
		timers:        make(map[string]*time.Timer),
		notifications: make(chan Notification, notificationBuffer),
		errors:        make(chan error, 1),
		done:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *fsnotifySource) Add(dir string) error {
	if err := s.watcher.Add(dir); err != nil {
		return fmt.Errorf("fsnotify add %s: %w", dir, err)
	}
	return nil
}

func (s *fsnotifySource) Notifications() <-chan Notification { return s.notifications }

func (s *fsnotifySource) Errors() <-chan error { return s.errors }

func (s *fsnotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()

		s.mu.Lock()
		for path, timer := range s.timers {
			timer.Stop()
			delete(s.timers, path)
		}
		s.mu.Unlock()
	})
	return err
}

func (s *fsnotifySource) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.logger.Debug("event queue overflowed", logging.Error(err))
				s.send(Notification{Op: OpOverflow})
				continue
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *fsnotifySource) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			s.send(Notification{Path: path, Op: OpDirCreated})
			return
		}
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		s.arm(path)
	}
}

// arm starts or restarts the settle timer for path.
func (s *fsnotifySource) arm(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	if timer, ok := s.timers[path]; ok {
		timer.Reset(s.settle)
		return
	}
	s.timers[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()
		s.send(Notification{Path: path, Op: OpWriteClosed})
	})
}

func (s *fsnotifySource) send(n Notification) {
	select {
	case s.notifications <- n:
	case <-s.done:
	}
}
