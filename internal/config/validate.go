package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateProcessor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Root == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("watch.root is required. Set EMLWATCH_ROOT or edit %s (create with 'emlwatch config init')", defaultPath)
	}
	target := c.Watch.TargetDir
	if target == "" {
		return errors.New("watch.target_dir must be set")
	}
	if strings.ContainsAny(target, `/\`) || target == "." || target == ".." {
		return fmt.Errorf("watch.target_dir %q must be a single directory name", target)
	}
	if err := ensureExtension("watch.input_extension", c.Watch.InputExtension); err != nil {
		return err
	}
	if err := ensureExtension("watch.output_extension", c.Watch.OutputExtension); err != nil {
		return err
	}
	if c.Watch.InputExtension == c.Watch.OutputExtension {
		return errors.New("watch.input_extension and watch.output_extension must differ")
	}
	switch c.Watch.Backend {
	case BackendAuto, BackendInotify, BackendFsnotify:
	default:
		return fmt.Errorf("watch.backend: unsupported value %q (use auto, inotify, or fsnotify)", c.Watch.Backend)
	}
	if c.Watch.SettleMillis <= 0 {
		return errors.New("watch.settle_millis must be positive")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	return ensurePositiveMap(map[string]int{
		"dispatch.workers":       c.Dispatch.Workers,
		"dispatch.scan_interval": c.Dispatch.ScanInterval,
	})
}

func (c *Config) validateProcessor() error {
	if err := ensurePositiveMap(map[string]int{
		"processor.companion_timeout":       c.Processor.CompanionTimeout,
		"processor.companion_poll_interval": c.Processor.CompanionPollInterval,
	}); err != nil {
		return err
	}
	if c.Processor.CompanionPollInterval > c.Processor.CompanionTimeout {
		return errors.New("processor.companion_poll_interval must not exceed processor.companion_timeout")
	}
	if err := ensureExtension("processor.temp_extension", c.Processor.TempExtension); err != nil {
		return err
	}
	switch c.Processor.TempExtension {
	case c.Watch.InputExtension, c.Watch.OutputExtension:
		return errors.New("processor.temp_extension must differ from the input and output extensions")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func ensureExtension(key, ext string) error {
	if ext == "" || ext == "." {
		return fmt.Errorf("%s must be set", key)
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return fmt.Errorf("%s %q must be a single extension like .json", key, ext)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
