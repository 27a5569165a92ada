package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"earthgazer/internal/catalog"
	"earthgazer/internal/config"
	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/pipeline"
	"earthgazer/internal/platform"
	"earthgazer/internal/preflight"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

// Backend constructors, replaced in tests.
var (
	openCatalog = func(ctx context.Context, cfg *config.Config) (catalog.Client, func() error, error) {
		client, err := catalog.NewBigQuery(ctx, cfg.Google.Project, cfg.Google.Location, cfg.Google.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	openObjects = func(ctx context.Context, cfg *config.Config) (storage.ObjectStore, func() error, error) {
		client, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) registry() (*platform.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return platform.Load(cfg.Platforms.DefinitionsFile)
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}

// backends are the opened collaborators shared by stage commands and checks.
type backends struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	catalog  catalog.Client
	objects  storage.ObjectStore
	registry *platform.Registry
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends opens the repository, object store and, when needCatalog is
// set, the catalog client. Callers must Close the result.
func (c *commandContext) openBackends(ctx context.Context, needCatalog bool) (*backends, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := platform.Load(cfg.Platforms.DefinitionsFile)
	if err != nil {
		return nil, err
	}
	b := &backends{cfg: cfg, logger: logger, registry: registry}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	b.store = st
	b.closers = append(b.closers, func() { closeQuietly(logger, "store", st.Close) })

	if needCatalog {
		client, closeCatalog, err := openCatalog(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.catalog = client
		b.closers = append(b.closers, func() { closeQuietly(logger, "catalog", closeCatalog) })
	}
	objects, closeObjects, err := openObjects(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.objects = objects
	b.closers = append(b.closers, func() { closeQuietly(logger, "object store", closeObjects) })
	return b, nil
}

func (b *backends) preflightTargets() preflight.Targets {
	return preflight.Targets{
		Config:   b.cfg,
		Store:    b.store,
		Objects:  b.objects,
		Catalog:  b.catalog,
		Registry: b.registry,
	}
}

// withPipeline holds the run lock for the duration of fn. The catalog client
// is only opened for stages that query it.
func (c *commandContext) withPipeline(cmd *cobra.Command, needCatalog bool, fn func(context.Context, *pipeline.Pipeline) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := pipeline.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := commandCtx(cmd)
	b, err := c.openBackends(ctx, needCatalog)
	if err != nil {
		return err
	}
	defer b.Close()

	p := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Store:    b.store,
		Catalog:  b.catalog,
		Objects:  b.objects,
		Registry: b.registry,
		Metrics:  metrics.New(),
		Logger:   b.logger,
	})
	return fn(ctx, p)
}

// withChecked is withPipeline preceded by the preflight checks; it refuses to
// start when any check fails.
func (c *commandContext) withChecked(cmd *cobra.Command, fn func(context.Context, *pipeline.Pipeline) error) error {
	ctx := commandCtx(cmd)
	b, err := c.openBackends(ctx, true)
	if err != nil {
		return err
	}
	failed := preflight.Failed(preflight.RunAll(ctx, b.preflightTargets()))
	b.Close()
	if len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, r.Name+": "+r.Detail)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
	}
	return c.withPipeline(cmd, true, fn)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeQuietly(logger *slog.Logger, name string, closer func() error) {
	if closer == nil {
		return
	}
	if err := closer(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("close failed", logging.String("resource", name), logging.Error(err))
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
