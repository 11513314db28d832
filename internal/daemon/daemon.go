package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"emlwatch/internal/config"
	"emlwatch/internal/dispatch"
	"emlwatch/internal/logging"
	"emlwatch/internal/preflight"
	"emlwatch/internal/watch"
)

// Daemon owns one watch-and-dispatch run over the configured tree.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	processor dispatch.Processor
	classify  func(error) string

	lockPath string
	lock     *flock.Flock

	mu         sync.Mutex
	running    atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
	runErr     error
	dispatcher *dispatch.Dispatcher
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Root         string
	TargetDir    string
	Backend      string
	Workers      int
	LockFilePath string
	Dispatch     dispatch.Stats
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithClassifier labels processor errors in worker logs.
func WithClassifier(classify func(error) string) Option {
	return func(d *Daemon) {
		d.classify = classify
	}
}

// New constructs a daemon around processor.
func New(cfg *config.Config, processor dispatch.Processor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || processor == nil {
		return nil, errors.New("daemon requires config and processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		processor: processor,
		lockPath:  cfg.LockPath(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, runs readiness checks and launches the
// watcher, scanner and worker pool. It returns once they are running.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	lock, err := AcquireLock(d.cfg)
	if err != nil {
		return err
	}

	if err := d.checkReadiness(); err != nil {
		_ = lock.Unlock()
		return err
	}

	source, err := watch.Open(d.cfg.Watch.Backend, d.cfg.SettleDelay(), d.logger)
	if err != nil {
		_ = lock.Unlock()
		return fmt.Errorf("open notification backend: %w", err)
	}

	oracle := dispatch.NewOracle(d.cfg.Watch.TargetDir, d.cfg.Watch.InputExtension, d.cfg.Watch.OutputExtension)
	dispatcher := dispatch.New(dispatch.Options{
		Workers:  d.cfg.Dispatch.Workers,
		Oracle:   oracle,
		Classify: d.classify,
	}, d.processor, d.logger)
	scanner := dispatch.NewScanner(d.cfg.Watch.Root, d.cfg.ScanInterval(), oracle, dispatcher, d.logger)
	watcher := watch.NewTreeWatcher(d.cfg.Watch.Root, source, oracle, dispatcher, scanner, d.logger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.lock = lock
	d.cancel = cancel
	d.done = done
	d.runErr = nil
	d.dispatcher = dispatcher
	d.running.Store(true)

	go func() {
		defer close(done)
		err := dispatcher.Run(runCtx, watcher, scanner)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		if err != nil {
			logging.ErrorWithContext(d.logger, "dispatcher exited with error", "dispatcher_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the watched root exists and is readable"),
			)
		}
	}()

	d.logger.Info("emlwatch daemon started",
		logging.String("root", d.cfg.Watch.Root),
		logging.String("target_dir", d.cfg.Watch.TargetDir),
		logging.String("backend", d.cfg.Watch.Backend),
		logging.Int("workers", d.cfg.Dispatch.Workers),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) checkReadiness() error {
	results := preflight.RunAll(d.cfg)
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		if result.Fatal {
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path in the config file; candidates fail until then"),
			logging.String(logging.FieldImpact, "affected candidates stay pending and are retried by reconciliation scans"),
		)
	}
	if fatal, ok := preflight.FirstFatal(results); ok {
		return fmt.Errorf("%s: %s", fatal.Name, fatal.Detail)
	}
	return nil
}

// Done is closed when the current run ends, either after Stop or because a
// producer failed. It returns nil before the first Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error that ended the last run, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the producers, waits for in-flight processor calls to finish
// and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	done := d.done
	lock := d.lock
	if cancel == nil {
		d.mu.Unlock()
		return
	}
	d.cancel = nil
	d.lock = nil
	d.mu.Unlock()

	cancel()
	<-done

	if err := lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no emlwatch process is running"),
			logging.String(logging.FieldImpact, "the next start may report the tree as owned"),
		)
	}
	d.running.Store(false)
	d.logger.Info("emlwatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	dispatcher := d.dispatcher
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		Root:         d.cfg.Watch.Root,
		TargetDir:    d.cfg.Watch.TargetDir,
		Backend:      d.cfg.Watch.Backend,
		Workers:      d.cfg.Dispatch.Workers,
		LockFilePath: d.lockPath,
	}
	if dispatcher != nil {
		status.Dispatch = dispatcher.Stats()
	}
	return status
}
