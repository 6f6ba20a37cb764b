package preflight

import (
	"context"

	"vietdub/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir),
		CheckAPIBind(cfg.Paths.APIBind),
	}
	results = append(results, CheckTools()...)
	return results
}

// Passed reports whether every required check succeeded. Optional failures
// degrade individual stages but do not block startup.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return false
		}
	}
	return true
}
