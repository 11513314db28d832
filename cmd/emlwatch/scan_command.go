package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"emlwatch/internal/config"
	"emlwatch/internal/daemon"
	"emlwatch/internal/dispatch"
	"emlwatch/internal/logging"
	"emlwatch/internal/processor"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation pass over the watched tree",
		Long: "Walk the watched tree once and process every record that has no artifact yet. " +
			"Refuses to run while the daemon owns the tree. With --dry-run, only list the pending records.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun {
				return runScanDryRun(cmd, cfg)
			}
			return runScanBatch(cmd, ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List pending records without processing them")
	return cmd
}

func newOracle(cfg *config.Config) dispatch.Oracle {
	return dispatch.NewOracle(cfg.Watch.TargetDir, cfg.Watch.InputExtension, cfg.Watch.OutputExtension)
}

func runScanDryRun(cmd *cobra.Command, cfg *config.Config) error {
	scanner := dispatch.NewScanner(cfg.Watch.Root, cfg.ScanInterval(), newOracle(cfg), nil, logging.NewNop())
	pending, err := scanner.Pending(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.Watch.Root, err)
	}

	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending records")
		return nil
	}
	rows := make([][]string, 0, len(pending))
	for _, candidate := range pending {
		rows = append(rows, []string{relativeTo(cfg.Watch.Root, candidate)})
	}
	fmt.Fprintln(out, renderTable([]string{"Pending record"}, rows, []columnAlignment{alignLeft}))
	fmt.Fprintf(out, "%d pending record(s)\n", len(pending))
	return nil
}

func runScanBatch(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		if errors.Is(err, daemon.ErrLocked) {
			return fmt.Errorf("daemon is running (lock %s held); it already reconciles the tree", cfg.LockPath())
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()

	logger, err := ctx.commandLogger(cmd, cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	oracle := newOracle(cfg)
	proc := processor.New(processor.OptionsFromConfig(cfg), logger)
	dispatcher := dispatch.New(dispatch.Options{
		Workers:  cfg.Dispatch.Workers,
		Oracle:   oracle,
		Classify: processor.Kind,
	}, proc, logger)
	scanner := dispatch.NewScanner(cfg.Watch.Root, cfg.ScanInterval(), oracle, dispatcher, logger)

	result, err := scanner.ScanOnce(runCtx, dispatch.ScanManual)
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.Watch.Root, err)
	}
	if err := dispatcher.Flush(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("process records: %w", err)
	}

	stats := dispatcher.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Examined", "Completed", "Admitted", "Processed", "Failed", "Abandoned"},
		[][]string{{
			fmt.Sprint(result.Examined),
			fmt.Sprint(result.Completed),
			fmt.Sprint(result.Admitted),
			fmt.Sprint(stats.Processed),
			fmt.Sprint(stats.Failed),
			fmt.Sprint(stats.Abandoned),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	if stats.Failed > 0 {
		return fmt.Errorf("%d record(s) failed; see log output for details", stats.Failed)
	}
	return nil
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
