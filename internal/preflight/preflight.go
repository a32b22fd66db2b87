package preflight

import (
	"context"

	"labmq/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run for enabled subsystems.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBroker(ctx, cfg.Broker.URL),
	}

	if cfg.Motion.Enabled {
		results = append(results, CheckDevice("Motion device", cfg.Motion.Device))
	}
	if cfg.Digitizer.Enabled {
		results = append(results, CheckDevice("Digitizer device", cfg.Digitizer.Device))
	}

	return results
}
