package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"emlwatch/internal/dispatch"
	"emlwatch/internal/logging"
)

// Rescanner requests an immediate reconciliation pass.
type Rescanner interface {
	Trigger()
}

// TreeWatcher subscribes every directory under root and admits candidates
// reported by the Source. The subscription arena is keyed by cleaned path,
// touched only from the Run goroutine, and never pruned.
type TreeWatcher struct {
	root      string
	source    Source
	oracle    dispatch.Oracle
	admitter  dispatch.Admitter
	rescanner Rescanner
	logger    *slog.Logger

	subscriptions map[string]struct{}
	ready         chan struct{}
}

// NewTreeWatcher wires a watcher. rescanner may be nil.
func NewTreeWatcher(root string, source Source, oracle dispatch.Oracle, admitter dispatch.Admitter, rescanner Rescanner, logger *slog.Logger) *TreeWatcher {
	return &TreeWatcher{
		root:          filepath.Clean(root),
		source:        source,
		oracle:        oracle,
		admitter:      admitter,
		rescanner:     rescanner,
		logger:        logging.NewComponentLogger(logger, "watcher"),
		subscriptions: make(map[string]struct{}),
		ready:         make(chan struct{}),
	}
}

// Ready is closed once the startup walk has subscribed the tree.
func (w *TreeWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run subscribes the tree and handles notifications until ctx is canceled.
// Failing to subscribe the root itself is returned; any other subscription
// failure leaves that subtree to the reconciliation scanner. The Source is
// closed when Run returns.
func (w *TreeWatcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.source.Close(); err != nil {
			w.logger.Debug("notification source close failed", logging.Error(err))
		}
	}()

	if err := w.source.Add(w.root); err != nil {
		return fmt.Errorf("watch root %s: %w", w.root, err)
	}
	w.subscriptions[w.root] = struct{}{}
	w.subscribeTree(ctx, w.root, false)
	close(w.ready)
	w.logger.Info("tree watcher started",
		logging.String("root", w.root),
		logging.Int("subscriptions", len(w.subscriptions)),
		logging.String(logging.FieldEventType, "watcher_started"),
	)

	notifications := w.source.Notifications()
	errs := w.source.Errors()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("tree watcher stopped",
				logging.Int("subscriptions", len(w.subscriptions)),
				logging.String(logging.FieldEventType, "watcher_stopped"),
			)
			return nil
		case n, ok := <-notifications:
			if !ok {
				return w.sourceStopped(errs)
			}
			if ctx.Err() != nil {
				continue
			}
			w.handle(ctx, n)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.WarnWithContext(w.logger, "notification backend error", "watch_backend_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits (fs.inotify.max_user_watches)"),
				logging.String(logging.FieldImpact, "missed candidates are picked up by the next reconciliation scan"),
			)
			w.requestScan()
		}
	}
}

// sourceStopped builds the error for a notification channel closed while
// the watcher was still running, including the backend's reason if one is
// pending.
func (w *TreeWatcher) sourceStopped(errs <-chan error) error {
	stopped := errors.New("notification source closed unexpectedly")
	select {
	case cause, ok := <-errs:
		if ok && cause != nil {
			return fmt.Errorf("%w: %w", stopped, cause)
		}
	default:
	}
	return stopped
}

func (w *TreeWatcher) handle(ctx context.Context, n Notification) {
	switch n.Op {
	case OpDirCreated:
		w.subscribeTree(ctx, n.Path, true)
	case OpWriteClosed:
		if w.oracle.Matches(n.Path) {
			w.admitter.Admit(n.Path)
		}
	case OpOverflow:
		logging.WarnWithContext(w.logger, "notification queue overflowed; events were dropped", "watch_overflow",
			logging.String(logging.FieldErrorHint, "raise fs.inotify.max_queued_events if this repeats"),
			logging.String(logging.FieldImpact, "an immediate reconciliation scan was requested"),
		)
		w.requestScan()
	}
}

// subscribeTree subscribes dir and every directory beneath it. With
// admitExisting set, eligible files already present are admitted too, which
// covers content published by creating a whole subtree at once.
func (w *TreeWatcher) subscribeTree(ctx context.Context, dir string, admitExisting bool) {
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Debug("walk skipped path", logging.String("path", path), logging.Error(err))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if _, ok := w.subscriptions[path]; ok && path == w.root {
				return nil
			}
			if err := w.source.Add(path); err != nil {
				logging.WarnWithContext(w.logger, "directory subscription failed; subtree left to reconciliation scans", "watch_subscribe_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check directory permissions and fs.inotify.max_user_watches"),
					logging.String(logging.FieldImpact, "new files below this directory are found only by periodic scans"),
				)
				return fs.SkipDir
			}
			w.subscriptions[path] = struct{}{}
			return nil
		}
		if admitExisting && entry.Type().IsRegular() && w.oracle.Matches(path) {
			w.admitter.Admit(path)
		}
		return nil
	})
}

func (w *TreeWatcher) requestScan() {
	if w.rescanner != nil {
		w.rescanner.Trigger()
	}
}
