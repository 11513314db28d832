package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"emlwatch/internal/logging"
)

// Scan labels used in logs.
const (
	ScanStartup  = "startup"
	ScanPeriodic = "periodic"
	ScanOverflow = "overflow"
	ScanManual   = "manual"
)

// ScanResult summarizes one reconciliation pass.
type ScanResult struct {
	Examined  int
	Completed int
	Admitted  int
	Elapsed   time.Duration
}

// Scanner walks the watched tree and admits every candidate lacking a
// completion artifact, independent of change notifications.
type Scanner struct {
	root     string
	interval time.Duration
	oracle   Oracle
	admitter Admitter
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewScanner constructs a scanner rooted at root that runs every interval.
func NewScanner(root string, interval time.Duration, oracle Oracle, admitter Admitter, logger *slog.Logger) *Scanner {
	return &Scanner{
		root:     filepath.Clean(root),
		interval: interval,
		oracle:   oracle,
		admitter: admitter,
		logger:   logging.NewComponentLogger(logger, "scanner"),
		trigger:  make(chan struct{}, 1),
	}
}

// Run performs a startup pass and then one pass per interval until ctx is
// canceled. A failing startup pass is returned; later failures are logged.
func (s *Scanner) Run(ctx context.Context) error {
	if _, err := s.ScanOnce(ctx, ScanStartup); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("startup scan: %w", err)
	}

	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		label := ScanPeriodic
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.trigger:
			label = ScanOverflow
		}
		if _, err := s.ScanOnce(ctx, label); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "reconciliation scan failed", "scan_failed",
				logging.String(logging.FieldLabel, label),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the watched root is readable"),
				logging.String(logging.FieldImpact, "unprocessed candidates wait for the next scan"),
			)
		}
	}
}

// Trigger requests an immediate pass. Requests made while one is already
// pending collapse into it.
func (s *Scanner) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// ScanOnce walks the tree once and admits every pending candidate.
func (s *Scanner) ScanOnce(ctx context.Context, label string) (ScanResult, error) {
	started := time.Now()
	var result ScanResult
	err := s.Walk(ctx, func(candidate string, completed bool) {
		result.Examined++
		if completed {
			result.Completed++
			return
		}
		if s.admitter != nil && s.admitter.Admit(candidate) {
			result.Admitted++
		}
	})
	result.Elapsed = time.Since(started)
	if err != nil {
		return result, err
	}
	s.logger.Info("reconciliation scan complete",
		logging.String(logging.FieldLabel, label),
		logging.Int("examined", result.Examined),
		logging.Int("completed", result.Completed),
		logging.Int("admitted", result.Admitted),
		logging.Duration("elapsed", result.Elapsed),
		logging.String(logging.FieldEventType, "scan_complete"),
	)
	return result, nil
}

// Walk visits every regular file inside a target-named directory under the
// root that carries the input extension, reporting whether it is completed.
// Unreadable subtrees are logged and skipped; an unreadable root is an error.
func (s *Scanner) Walk(ctx context.Context, visit func(candidate string, completed bool)) error {
	return filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.root {
				return err
			}
			s.logger.Debug("skipping unreadable path",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_path_skipped"),
			)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !s.oracle.Matches(path) {
			return nil
		}
		visit(path, s.oracle.Completed(path))
		return nil
	})
}

// Pending returns the candidates under the root that lack an artifact.
func (s *Scanner) Pending(ctx context.Context) ([]string, error) {
	var pending []string
	err := s.Walk(ctx, func(candidate string, completed bool) {
		if !completed {
			pending = append(pending, candidate)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return pending, err
	}
	return pending, nil
}
