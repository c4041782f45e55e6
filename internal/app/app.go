// Package app wires configuration into the sources, caches and gateway used
// by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantmind-br/docgate/internal/cache"
	"github.com/quantmind-br/docgate/internal/config"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/gateway"
	"github.com/quantmind-br/docgate/internal/refs"
	"github.com/quantmind-br/docgate/internal/utils"
)

// SourceFactory creates the provider for a detected source type
type SourceFactory func(SourceType, *config.Config, *utils.Logger) (domain.Source, error)

// Options contains options for creating an App
type Options struct {
	Config  *config.Config
	Verbose bool
	// Logger overrides the logger built from the logging config
	Logger        *utils.Logger
	SourceFactory SourceFactory
}

// App holds the long-lived components of one process
type App struct {
	config  *config.Config
	logger  *utils.Logger
	source  domain.Source
	store   *cache.BadgerCache
	catalog *refs.Catalog
	gateway *gateway.Gateway
}

// New creates the application components from cfg
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		level := cfg.Logging.Level
		if opts.Verbose {
			level = "debug"
		}
		logger = utils.NewLogger(utils.LoggerOptions{
			Level:   level,
			Format:  cfg.Logging.Format,
			Verbose: opts.Verbose,
		})
	}

	factory := opts.SourceFactory
	if factory == nil {
		factory = CreateSource
	}

	sourceType := DetectSource(cfg.Source)
	src, err := factory(sourceType, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	store, err := cache.NewBadgerCache(cache.Options{
		Directory: utils.ExpandPath(cfg.Cache.Directory),
		InMemory:  cfg.Cache.InMemory,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ref store: %w", err)
	}

	// ref listings are not persisted when caching is disabled
	var refStore domain.Cache = store
	if cfg.Cache.NoCache {
		refStore = nil
	}
	catalog := refs.NewCatalog(src, refStore, refs.CatalogOptions{
		TTL:    cfg.Cache.RefsTTL,
		Logger: logger,
	})

	gw, err := gateway.New(gateway.Options{
		Archives:    src,
		Files:       src,
		DocsPath:    cfg.Docs.Path,
		Menu:        gateway.CacheSettings(cfg.Cache.Menu),
		Doc:         gateway.CacheSettings(cfg.Cache.Doc),
		Image:       gateway.CacheSettings(cfg.Cache.Image),
		NoCache:     cfg.Cache.NoCache,
		MaxFileSize: cfg.Docs.MaxFileSizeBytes(),
		Logger:      logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	logger.Debug().
		Str("source", src.Name()).
		Str("docs_path", cfg.Docs.Path).
		Bool("no_cache", cfg.Cache.NoCache).
		Msg("Application initialized")

	return &App{
		config:  cfg,
		logger:  logger,
		source:  src,
		store:   store,
		catalog: catalog,
		gateway: gw,
	}, nil
}

// Config returns the effective configuration
func (a *App) Config() *config.Config { return a.config }

// Logger returns the application logger
func (a *App) Logger() *utils.Logger { return a.logger }

// Source returns the repository provider
func (a *App) Source() domain.Source { return a.source }

// Catalog returns the ref catalog
func (a *App) Catalog() *refs.Catalog { return a.catalog }

// Gateway returns the content gateway
func (a *App) Gateway() *gateway.Gateway { return a.gateway }

// Repo returns repo in "owner/name" form, falling back to the configured
// default repository.
func (a *App) Repo(repo string) (string, error) {
	if repo == "" {
		repo = a.config.Docs.Repo
	}
	repo = NormalizeRepo(repo)
	if repo == "" {
		return "", domain.NewValidationError("repo", "no repository given and docs.repo is not set")
	}
	return repo, nil
}

// Resolve maps a request path to its canonical form for repo
func (a *App) Resolve(ctx context.Context, repo, path string) (string, bool, error) {
	return a.catalog.Resolve(ctx, repo, refs.ParsePath(path), a.config.Docs.DefaultLang)
}

// StoreStats returns entry and size counters of the persistent ref store
func (a *App) StoreStats() map[string]any {
	return a.store.Stats()
}

// ClearStore removes every entry of the persistent ref store
func (a *App) ClearStore() error {
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("clear ref store: %w", err)
	}
	a.logger.Info().Msg("Cleared ref store")
	return nil
}

// Close waits for background refreshes and releases the ref store
func (a *App) Close() error {
	a.gateway.Wait()
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ref store: %w", err))
	}
	return errors.Join(errs...)
}
