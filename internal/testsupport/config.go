package testsupport

import (
	"path/filepath"
	"testing"

	"emlwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test:
// a watched root, a text template, and log/state directories. Directories are
// created; the template file is written.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Watch.Root = filepath.Join(base, "root")
	cfgVal.Watch.TargetDir = "inbox"
	cfgVal.Watch.Backend = config.BackendFsnotify
	cfgVal.Watch.SettleMillis = 50
	cfgVal.Dispatch.Workers = 2
	cfgVal.Processor.TemplatePath = filepath.Join(base, "template.txt")
	cfgVal.Processor.CompanionTimeout = 1
	cfgVal.Processor.CompanionPollInterval = 1
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	MkdirAll(t, builder.cfg.Watch.Root)
	if builder.cfg.Processor.TemplatePath == filepath.Join(base, "template.txt") {
		WriteString(t, builder.cfg.Processor.TemplatePath, "{{.StartTime}}|{{.Body}}")
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBackend selects the notification backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watch.Backend = backend
	}
}

// WithTemplate points the processor at an existing template path.
func WithTemplate(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processor.TemplatePath = path
	}
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.Workers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Watch.Root)
}
