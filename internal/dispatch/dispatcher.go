package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"emlwatch/internal/logging"
)

// ErrProcessorPanic wraps a value recovered from a panicking processor.
var ErrProcessorPanic = errors.New("processor panic")

// ErrStopped is returned when Run or Flush is called on a dispatcher whose
// queue has already been closed.
var ErrStopped = errors.New("dispatcher stopped")

// Processor handles one candidate. A nil return means the processor finished;
// whether it produced an artifact is decided by the Oracle, not the return value.
type Processor interface {
	Process(ctx context.Context, candidate string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, candidate string) error

// Process calls f(ctx, candidate).
func (f ProcessorFunc) Process(ctx context.Context, candidate string) error {
	return f(ctx, candidate)
}

// Producer is a long-running loop that feeds candidates through Admit until
// ctx is canceled.
type Producer interface {
	Run(ctx context.Context) error
}

// Admitter is the admission entry point shared by all producers.
type Admitter interface {
	Admit(candidate string) bool
}

// Options configures a Dispatcher.
type Options struct {
	Workers int
	Oracle  Oracle
	// Classify labels processor errors for logging. Optional.
	Classify func(error) string
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Admitted    uint64
	Processed   uint64
	Failed      uint64
	Unpublished uint64
	Abandoned   uint64
	Queued      int
	InFlight    int
	Busy        int
}

// Dispatcher owns the in-flight set, the dispatch queue and the worker pool.
type Dispatcher struct {
	workers   int
	oracle    Oracle
	classify  func(error) string
	processor Processor
	logger    *slog.Logger

	inflight *InFlight
	queue    *Queue

	admitted    atomic.Uint64
	processed   atomic.Uint64
	failed      atomic.Uint64
	unpublished atomic.Uint64
	abandoned   atomic.Uint64
	busy        atomic.Int64
}

// New constructs a dispatcher. Workers below one are raised to one.
func New(opts Options, processor Processor, logger *slog.Logger) *Dispatcher {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		workers:   workers,
		oracle:    opts.Oracle,
		classify:  opts.Classify,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
		inflight:  NewInFlight(),
		queue:     NewQueue(),
	}
}

// Oracle returns the completion oracle used for admission.
func (d *Dispatcher) Oracle() Oracle {
	return d.oracle
}

// Admit queues candidate unless it is completed, already queued or in
// flight, or the dispatcher has stopped. It reports whether the candidate
// was queued. Admit is safe for concurrent use and idempotent.
func (d *Dispatcher) Admit(candidate string) bool {
	candidate = filepath.Clean(candidate)
	if !d.inflight.TryAcquire(candidate, d.oracle.Completed) {
		return false
	}
	if !d.queue.Push(candidate) {
		d.inflight.Release(candidate)
		return false
	}
	d.admitted.Add(1)
	d.logger.Debug("candidate admitted",
		logging.String(logging.FieldCandidate, candidate),
		logging.String(logging.FieldEventType, "candidate_admitted"),
	)
	return true
}

// Run starts the worker pool and every producer, and blocks until ctx is
// canceled or a producer fails. The queue closes as soon as the run context
// ends, so Admit refuses new candidates while active workers drain.
// Processor calls already running are allowed to finish; candidates still
// queued afterwards are released as abandoned. Cancellation is not an error.
func (d *Dispatcher) Run(ctx context.Context, producers ...Producer) error {
	if d.queue.Closed() {
		return ErrStopped
	}
	d.logger.Info("dispatcher started",
		logging.Int("workers", d.workers),
		logging.Int("producers", len(producers)),
		logging.String(logging.FieldEventType, "dispatcher_started"),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	stopAdmission := context.AfterFunc(groupCtx, d.queue.Close)
	defer stopAdmission()
	d.startWorkers(groupCtx, group)
	for _, producer := range producers {
		if producer == nil {
			continue
		}
		group.Go(func() error {
			if err := producer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	err := group.Wait()

	d.queue.Close()
	d.abandonQueued()
	d.logger.Info("dispatcher stopped",
		logging.Uint64("processed", d.processed.Load()),
		logging.Uint64("failed", d.failed.Load()),
		logging.Uint64("abandoned", d.abandoned.Load()),
		logging.String(logging.FieldEventType, "dispatcher_stopped"),
	)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}

// Flush closes the queue and runs the worker pool until every queued
// candidate has been processed. It is the batch counterpart of Run; no new
// candidates are accepted once it starts. If ctx is canceled first, the rest
// of the queue is abandoned.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if d.queue.Closed() {
		return ErrStopped
	}
	d.queue.Close()
	group, groupCtx := errgroup.WithContext(ctx)
	d.startWorkers(groupCtx, group)
	err := group.Wait()
	d.abandonQueued()
	return err
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Admitted:    d.admitted.Load(),
		Processed:   d.processed.Load(),
		Failed:      d.failed.Load(),
		Unpublished: d.unpublished.Load(),
		Abandoned:   d.abandoned.Load(),
		Queued:      d.queue.Len(),
		InFlight:    d.inflight.Len(),
		Busy:        int(d.busy.Load()),
	}
}

func (d *Dispatcher) startWorkers(ctx context.Context, group *errgroup.Group) {
	for i := range d.workers {
		group.Go(func() error {
			d.work(ctx, i+1)
			return nil
		})
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		candidate, err := d.queue.Pop(ctx)
		if err != nil {
			return
		}
		d.handle(ctx, id, candidate)
	}
}

func (d *Dispatcher) handle(ctx context.Context, worker int, candidate string) {
	d.busy.Add(1)
	defer func() {
		d.inflight.Release(candidate)
		d.busy.Add(-1)
	}()

	taskCtx := logging.WithCandidate(context.WithoutCancel(ctx), candidate)
	taskCtx = logging.WithRequestID(taskCtx, uuid.NewString())
	logger := logging.WithContext(taskCtx, d.logger).With(logging.Int("worker", worker))

	logger.Debug("processing candidate", logging.String(logging.FieldEventType, "candidate_started"))
	started := time.Now()
	err := d.invoke(taskCtx, candidate)
	elapsed := time.Since(started)

	if err != nil {
		d.failed.Add(1)
		attrs := []logging.Attr{
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "fix the input and touch it, or wait for the next reconciliation scan"),
		}
		if d.classify != nil {
			if kind := d.classify(err); kind != "" {
				attrs = append(attrs, logging.String("error_kind", kind))
			}
		}
		logging.ErrorWithContext(logger, "processing failed; candidate stays eligible", "candidate_failed", attrs...)
		return
	}

	d.processed.Add(1)
	if !d.oracle.Completed(candidate) {
		d.unpublished.Add(1)
		logging.WarnWithContext(logger, "processor returned without publishing an artifact", "artifact_missing",
			logging.String("artifact", d.oracle.ArtifactPath(candidate)),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldImpact, "candidate will be offered again by the next reconciliation scan"),
		)
		return
	}
	logger.Info("candidate completed",
		logging.String("artifact", d.oracle.ArtifactPath(candidate)),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "candidate_completed"),
	)
}

func (d *Dispatcher) invoke(ctx context.Context, candidate string) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, recovered)
		}
	}()
	if d.processor == nil {
		return errors.New("no processor configured")
	}
	return d.processor.Process(ctx, candidate)
}

func (d *Dispatcher) abandonQueued() {
	for _, candidate := range d.queue.Drain() {
		d.inflight.Release(candidate)
		d.abandoned.Add(1)
		d.logger.Info("queued candidate abandoned at shutdown",
			logging.String(logging.FieldCandidate, candidate),
			logging.String(logging.FieldEventType, "candidate_abandoned"),
		)
	}
}
