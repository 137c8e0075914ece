package preflight

import (
	"context"

	"facegate/internal/config"
	"facegate/internal/device/sim"
	"facegate/internal/serialport"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail" yaml:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Serial checks are skipped for the simulator driver.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDriver(cfg.Device.Driver),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Lock directory", cfg.Device.LockDir),
	}

	if cfg.Device.Driver != sim.DriverName {
		link, err := serialport.Resolve(ctx, cfg.Device)
		if err != nil {
			results = append(results, Result{Name: "Serial port", Detail: err.Error()})
		} else {
			results = append(results, CheckPort(link.Port))
			results = append(results, CheckLock(cfg.DeviceLockPath(link.Port)))
		}
	}

	if cfg.ServerMode() {
		results = append(results, CheckDatabaseFile("Template database", cfg.Paths.DatabaseFile))
	}
	results = append(results, CheckDatabaseFile("Job journal", cfg.Paths.JournalFile))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
