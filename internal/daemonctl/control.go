package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"emlwatch/internal/config"
	"emlwatch/internal/daemon"
	"emlwatch/internal/daemonrun"
)

const pollInterval = 100 * time.Millisecond

// ErrDaemonNotRunning indicates that no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached `emlwatch daemon` process in its own session.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForRunning waits until some process holds the daemon lock.
func WaitForRunning(cfg *config.Config, timeout time.Duration) error {
	return waitForLock(cfg, true, timeout)
}

// WaitForShutdown waits until the daemon lock is released.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	return waitForLock(cfg, false, timeout)
}

func waitForLock(cfg *config.Config, wantHeld bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		held, err := daemon.LockHeld(cfg)
		if err == nil && held == wantHeld {
			return nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		if wantHeld {
			lastErr = fmt.Errorf("lock %s was not taken within %s", cfg.LockPath(), timeout)
		} else {
			lastErr = fmt.Errorf("lock %s still held after %s", cfg.LockPath(), timeout)
		}
	}
	if wantHeld {
		return fmt.Errorf("daemon failed to start: %w", lastErr)
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already owns the tree.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	held, err := daemon.LockHeld(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if held {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForRunning(cfg, waitTimeout); err != nil {
		return StartResult{Launched: true}, err
	}
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// Signal sends sig to the process recorded in pidPath and returns its pid.
func Signal(pidPath string, sig syscall.Signal) (int, error) {
	pid, err := daemonrun.ReadPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid daemon pid %d in %s", pid, pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return pid, nil
}

// StopAndTerminate sends SIGTERM and waits gracePeriod for in-flight records
// to finish. When force is set and the lock is still held afterwards, the
// process is killed and its pid file removed.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration, force bool) (StopResult, error) {
	held, err := daemon.LockHeld(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !held {
		return StopResult{}, ErrDaemonNotRunning
	}

	pid, err := Signal(cfg.PIDPath(), syscall.SIGTERM)
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}

	waitErr := WaitForShutdown(cfg, gracePeriod)
	if waitErr == nil {
		return result, nil
	}
	if !force {
		return result, waitErr
	}

	if _, err := Signal(cfg.PIDPath(), syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", cfg.PIDPath(), err)
	}
	result.ForcedKill = true
	return result, WaitForShutdown(cfg, gracePeriod)
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(cfg, stopGracePeriod, true)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(cfg, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}
