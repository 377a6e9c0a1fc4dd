package preflight

import (
	"context"

	"scanmaster/internal/config"
)

// minFreeBytes is the free space below which a data directory fails its check.
const minFreeBytes = 100 * 1000 * 1000

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir, minFreeBytes),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir, 0),
		CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir, minFreeBytes),
		CheckServeLock(cfg.LockPath()),
		CheckBackend(ctx, cfg),
		CheckGenerator(cfg.Generator),
	}
	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, Result{Name: "ntfy", Passed: true, Optional: true, Detail: cfg.Notifications.NtfyTopic})
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
