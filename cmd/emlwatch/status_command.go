package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"emlwatch/internal/config"
	"emlwatch/internal/daemon"
	"emlwatch/internal/daemonrun"
	"emlwatch/internal/dispatch"
	"emlwatch/internal/logging"
	"emlwatch/internal/preflight"
)

type directoryCounts struct {
	pending   int
	completed int
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, readiness checks, and pending work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printLines(out, renderSectionHeader("Daemon", colorize))
			printLines(out, daemonLines(cfg, colorize))
			fmt.Fprintln(out)

			printLines(out, renderSectionHeader("Readiness", colorize))
			printLines(out, readinessLines(preflight.RunAll(cfg), colorize))
			fmt.Fprintln(out)

			printLines(out, renderSectionHeader("Tree", colorize))
			counts, err := collectCounts(cmd, cfg)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Walk", statusError, err.Error(), colorize))
				return nil
			}
			fmt.Fprintln(out, renderCounts(cfg.Watch.Root, counts))
			return nil
		},
	}
}

func daemonLines(cfg *config.Config, colorize bool) []string {
	lines := make([]string, 0, 4)
	held, err := daemon.LockHeld(cfg)
	switch {
	case err != nil:
		lines = append(lines, renderStatusLine("Daemon", statusError, err.Error(), colorize))
	case held:
		message := "Running"
		if pid, err := daemonrun.ReadPIDFile(cfg.PIDPath()); err == nil {
			message = fmt.Sprintf("Running (pid %d)", pid)
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, message, colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
		if _, err := os.Stat(cfg.PIDPath()); err == nil {
			lines = append(lines, renderStatusLine("PID file", statusWarn, "stale "+cfg.PIDPath(), colorize))
		} else if !errors.Is(err, os.ErrNotExist) {
			lines = append(lines, renderStatusLine("PID file", statusError, err.Error(), colorize))
		}
	}
	lines = append(lines,
		renderStatusLine("Root", statusInfo, cfg.Watch.Root, colorize),
		renderStatusLine("Target directory", statusInfo, cfg.Watch.TargetDir, colorize),
		renderStatusLine("Backend", statusInfo, fmt.Sprintf("%s, %d workers", cfg.Watch.Backend, cfg.Dispatch.Workers), colorize),
	)
	return lines
}

// collectCounts tallies pending and completed records per target directory.
func collectCounts(cmd *cobra.Command, cfg *config.Config) (map[string]*directoryCounts, error) {
	scanner := dispatch.NewScanner(cfg.Watch.Root, cfg.ScanInterval(), newOracle(cfg), nil, logging.NewNop())
	counts := make(map[string]*directoryCounts)
	err := scanner.Walk(cmd.Context(), func(candidate string, completed bool) {
		dir := filepath.Dir(candidate)
		entry, ok := counts[dir]
		if !ok {
			entry = &directoryCounts{}
			counts[dir] = entry
		}
		if completed {
			entry.completed++
		} else {
			entry.pending++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", cfg.Watch.Root, err)
	}
	return counts, nil
}

func renderCounts(root string, counts map[string]*directoryCounts) string {
	if len(counts) == 0 {
		return statusIndent + "No records found"
	}
	dirs := make([]string, 0, len(counts))
	for dir := range counts {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	rows := make([][]string, 0, len(dirs)+1)
	var pending, completed int
	for _, dir := range dirs {
		entry := counts[dir]
		pending += entry.pending
		completed += entry.completed
		rows = append(rows, []string{relativeTo(root, dir), fmt.Sprint(entry.pending), fmt.Sprint(entry.completed)})
	}
	rows = append(rows, []string{"Total", fmt.Sprint(pending), fmt.Sprint(completed)})
	return renderTable(
		[]string{"Directory", "Pending", "Completed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
