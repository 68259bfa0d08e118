package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/componentry/internal/config"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/memstore"
	"github.com/vk/componentry/internal/metric"
	"github.com/vk/componentry/internal/registry"
	"github.com/vk/componentry/internal/system"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	catalog *registry.Catalog
	metrics *metric.Metrics
	system  *system.System

	// mem backs the memory store backend so enabled flags survive a reset.
	mem *memstore.Store

	// open connects the configured store backend. The store in use is
	// kept across reloads while its configuration is unchanged.
	open  storeOpener
	mu    sync.Mutex
	store *openedStore

	httpServer *http.Server
}

// NewApp is the constructor for the main application. The configuration
// files are read once here to set up logging; the registry is only loaded
// when the system is initialised. Without modules the core modules are used.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	ctx := context.Background()
	fileCfg, err := config.Load(ctx, appConfig.ConfigPaths...)
	if err != nil {
		return nil, err
	}
	level, format := fileCfg.Log.Level, fileCfg.Log.Format
	if appConfig.LogLevel != "" {
		level = appConfig.LogLevel
	}
	if appConfig.LogFormat != "" {
		format = appConfig.LogFormat
	}
	logger := newLogger(level, format, outW)
	logger.Debug("Logger configured successfully.", "level", level, "format", format)

	if len(modules) == 0 {
		modules = coreModules()
	}
	catalog, err := registry.NewCatalog(modules...)
	if err != nil {
		return nil, err
	}

	m, err := metric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  appConfig,
		catalog: catalog,
		metrics: m,
		mem:     memstore.New(),
		open:    openStore,
	}
	a.system = system.New(a.load, system.WithMetrics(m))
	logger.Debug("App created.", "modules", catalog.Names(), "config_files", fileCfg.Files)
	return a, nil
}

// Context returns ctx carrying the app logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// System returns the application's lifecycle. This is primarily for testing.
func (a *App) System() *system.System { return a.system }

// Metrics returns the application's metrics.
func (a *App) Metrics() *metric.Metrics { return a.metrics }

// Close releases the store connection.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.store.close()
	a.store = nil
	return err
}

// load is the system loader: it reads the configuration, opens the store
// and loads a new registry.
func (a *App) load(ctx context.Context) (*config.Config, *registry.Registry, error) {
	ctx = a.Context(ctx)
	cfg, err := config.Load(ctx, a.config.ConfigPaths...)
	if err != nil {
		return nil, nil, err
	}

	st, err := a.acquireStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New(registry.Options{
		SystemModules:        cfg.Registry.SystemModules,
		ModulePaths:          cfg.Registry.ModulePaths,
		Modules:              cfg.Registry.Modules,
		Catalog:              a.catalog,
		Store:                st.store,
		ValidationLevel:      cfg.Registry.ValidationLevel,
		InterfaceLevels:      cfg.InterfaceLevels,
		ImplementationLevels: cfg.ImplementationLevels,
		Settings:             cfg,
		Metrics:              a.metrics,
	})
	if err := reg.Load(ctx); err != nil {
		a.releaseStore(ctx, st)
		return nil, nil, err
	}
	a.commitStore(ctx, st)
	return cfg, reg, nil
}
