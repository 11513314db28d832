package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Watch describes the watched tree and how candidates inside it are recognised.
type Watch struct {
	Root            string `toml:"root"`
	TargetDir       string `toml:"target_dir"`
	InputExtension  string `toml:"input_extension"`
	OutputExtension string `toml:"output_extension"`
	Backend         string `toml:"backend"`
	SettleMillis    int    `toml:"settle_millis"`
}

// Dispatch sizes the worker pool and the reconciliation sweep.
type Dispatch struct {
	Workers      int `toml:"workers"`
	ScanInterval int `toml:"scan_interval"`
}

// Processor contains settings for the record-to-document processor.
type Processor struct {
	TemplatePath          string `toml:"template_path"`
	RecordKey             string `toml:"record_key"`
	CompanionTimeout      int    `toml:"companion_timeout"`
	CompanionPollInterval int    `toml:"companion_poll_interval"`
	TempExtension         string `toml:"temp_extension"`
}

// Paths contains directories owned by the daemon itself.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for emlwatch.
//
// Configuration sections by subsystem:
//   - Watch: watched root, target directory name, candidate/artifact extensions
//   - Dispatch: worker count and reconciliation interval
//   - Processor: template, record layout, companion wait ceiling
//   - Paths: log and state (lock, pid) directories
//   - Logging: log format, level, and retention
type Config struct {
	Watch     Watch     `toml:"watch"`
	Dispatch  Dispatch  `toml:"dispatch"`
	Processor Processor `toml:"processor"`
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("emlwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The watched
// root is never created: a missing root is a startup error surfaced by preflight.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ScanInterval returns the reconciliation interval as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Dispatch.ScanInterval) * time.Second
}

// SettleDelay returns the quiet period the portable backend waits before
// treating a file as fully written.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Watch.SettleMillis) * time.Millisecond
}

// CompanionTimeout returns the ceiling the processor waits for a companion file.
func (c *Config) CompanionTimeout() time.Duration {
	return time.Duration(c.Processor.CompanionTimeout) * time.Second
}

// CompanionPollInterval returns how often the processor checks for a companion file.
func (c *Config) CompanionPollInterval() time.Duration {
	return time.Duration(c.Processor.CompanionPollInterval) * time.Second
}

// LockPath returns the path of the single-owner daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "emlwatch.lock")
}

// PIDPath returns the path of the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "emlwatch.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
