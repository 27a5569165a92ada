package preflight

import (
	"context"

	"earthgazer/internal/catalog"
	"earthgazer/internal/config"
	"earthgazer/internal/platform"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Targets are the collaborators RunAll probes. A nil Catalog skips the
// catalog check.
type Targets struct {
	Config   *config.Config
	Store    *store.Store
	Objects  storage.ObjectStore
	Catalog  catalog.Client
	Registry *platform.Registry
}

// RunAll executes every applicable check.
func RunAll(ctx context.Context, t Targets) []Result {
	cfg := t.Config
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
	}
	if t.Registry != nil {
		results = append(results, CheckPlatforms(t.Registry, cfg.Platforms.Monitored))
	}
	if t.Store != nil {
		results = append(results, CheckDatabase(ctx, t.Store))
	}
	if t.Objects != nil {
		results = append(results, CheckDestination(ctx, "Backup destination", t.Objects, cfg.Storage.BackupBase))
		if cfg.Storage.CompositeBase != cfg.Storage.BackupBase {
			results = append(results, CheckDestination(ctx, "Composite destination", t.Objects, cfg.Storage.CompositeBase))
		}
	}
	if t.Catalog != nil {
		results = append(results, CheckCatalog(ctx, t.Catalog))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
