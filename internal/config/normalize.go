package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	if err := c.normalizeProcessor(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeWatch() error {
	c.Watch.Root = strings.TrimSpace(c.Watch.Root)
	if c.Watch.Root == "" {
		if value, ok := os.LookupEnv("EMLWATCH_ROOT"); ok {
			c.Watch.Root = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Watch.Root, err = expandPath(c.Watch.Root); err != nil {
		return fmt.Errorf("watch.root: %w", err)
	}
	c.Watch.TargetDir = strings.TrimSpace(c.Watch.TargetDir)
	c.Watch.InputExtension = normalizeExtension(c.Watch.InputExtension)
	c.Watch.OutputExtension = normalizeExtension(c.Watch.OutputExtension)
	c.Watch.Backend = strings.ToLower(strings.TrimSpace(c.Watch.Backend))
	if c.Watch.Backend == "" {
		c.Watch.Backend = defaultBackend
	}
	return nil
}

func (c *Config) normalizeProcessor() error {
	var err error
	if strings.TrimSpace(c.Processor.TemplatePath) == "" {
		c.Processor.TemplatePath = defaultTemplatePath
	}
	if c.Processor.TemplatePath, err = expandPath(strings.TrimSpace(c.Processor.TemplatePath)); err != nil {
		return fmt.Errorf("processor.template_path: %w", err)
	}
	c.Processor.RecordKey = strings.TrimSpace(c.Processor.RecordKey)
	if c.Processor.RecordKey == "" {
		c.Processor.RecordKey = defaultRecordKey
	}
	c.Processor.TempExtension = normalizeExtension(c.Processor.TempExtension)
	if c.Processor.TempExtension == "" {
		c.Processor.TempExtension = defaultTempExtension
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeExtension lowercases an extension and guarantees a leading dot.
func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
