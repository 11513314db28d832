package preflight

import (
	"emlwatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Fatal marks a check whose failure must stop the daemon from starting.
	Fatal bool
}

// Check names.
const (
	NameWatchRoot = "Watched root"
	NameTemplate  = "Template"
	NameLogDir    = "Log directory"
	NameStateDir  = "State directory"
)

// RunAll executes every readiness check for cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	root := CheckDirectoryAccess(NameWatchRoot, cfg.Watch.Root, false)
	root.Fatal = true

	return []Result{
		root,
		CheckTemplate(cfg.Processor.TemplatePath),
		CheckDirectoryAccess(NameLogDir, cfg.Paths.LogDir, true),
		CheckDirectoryAccess(NameStateDir, cfg.Paths.StateDir, true),
	}
}

// FirstFatal returns the first failed fatal result, if any.
func FirstFatal(results []Result) (Result, bool) {
	for _, result := range results {
		if result.Fatal && !result.Passed {
			return result, true
		}
	}
	return Result{}, false
}
