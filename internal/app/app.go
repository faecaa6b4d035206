// Package app assembles a running guardian from a loaded config: project
// store and cache, scope builder, provider, transcript sinks, alert
// dispatcher and the decision engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/alert"
	"github.com/ppiankov/scopeguard/internal/config"
	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/project"
	"github.com/ppiankov/scopeguard/internal/provider"
	"github.com/ppiankov/scopeguard/internal/scope"
	"github.com/ppiankov/scopeguard/internal/storage"
	"github.com/ppiankov/scopeguard/internal/transcript"
)

// alertGrace bounds how long Close lets webhook sends finish.
const alertGrace = 5 * time.Second

// Options override parts of the assembly.
type Options struct {
	Logger *zap.Logger
	// Provider replaces the provider named in the config.
	Provider provider.Provider
}

// Catalog is the project store, fronted by the Redis cache when configured.
type Catalog struct {
	project.Backend
	db    *sql.DB
	cache *project.Cache
}

// OpenCatalog opens the project catalog described by cfg.
func OpenCatalog(cfg *config.Config, logger *zap.Logger) (*Catalog, error) {
	db, err := storage.OpenSQLite(cfg.Storage.Database)
	if err != nil {
		return nil, err
	}
	return newCatalog(cfg, db, logger)
}

func newCatalog(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*Catalog, error) {
	store, err := project.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c := &Catalog{Backend: store, db: db}
	if cfg.Storage.RedisURL != "" {
		cache, err := project.NewCache(store, cfg.Storage.RedisURL, cfg.Storage.CacheTTL, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		c.Backend = cache
		c.cache = cache
	}
	return c, nil
}

// DB returns the shared SQLite handle.
func (c *Catalog) DB() *sql.DB { return c.db }

// Close closes the cache and the database.
func (c *Catalog) Close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	errs = append(errs, c.db.Close())
	return errors.Join(errs...)
}

// App is an assembled guardian.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	catalog  *Catalog
	builder  *scope.Builder
	journal  *transcript.Log
	archive  *transcript.Store
	alerts   *alert.Dispatcher
	provider provider.Provider
	engine   *guardian.Engine
}

// Open assembles the guardian described by cfg.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prov := opts.Provider
	if prov == nil {
		var err error
		prov, err = provider.New(ctx, provider.Config{
			Name:            cfg.Provider.Name,
			APIKey:          cfg.APIKey(),
			Model:           cfg.Provider.Model,
			BaseURL:         cfg.Provider.BaseURL,
			MaxTokens:       cfg.Provider.MaxTokens,
			IncludeThoughts: cfg.Provider.IncludeThoughts,
		})
		if err != nil {
			return nil, fmt.Errorf("app: provider: %w", err)
		}
	}

	catalog, err := OpenCatalog(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	archive, err := transcript.NewStore(catalog.DB())
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	journal, err := transcript.Open(cfg.Storage.TranscriptLog)
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		builder:  scope.NewBuilder(catalog, cfg.ExtensionSet()),
		journal:  journal,
		archive:  archive,
		alerts:   alert.NewDispatcher(cfg.Alerts, logger.Named("alert")),
		provider: prov,
	}

	a.engine, err = guardian.New(guardian.Deps{
		Scope:    a.builder,
		Provider: prov,
		Recorder: transcript.Multi{journal, archive},
		Alerts:   a.alerts,
		Logger:   logger.Named("guardian"),
	}, guardian.Config{
		MaxMessageChars:  cfg.Guardian.MaxMessageChars,
		TruncateOverlong: cfg.Guardian.TruncateOverlong,
		ProviderTimeout:  cfg.Provider.Timeout,
		AuditTimeout:     cfg.Guardian.AuditTimeout,
		RedactMode:       cfg.RedactMode(),
		RedactRules:      cfg.RedactRules(),
	})
	if err != nil {
		_ = journal.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info("guardian assembled",
		zap.String("provider", prov.Name()),
		zap.String("redact_mode", string(cfg.RedactMode())),
		zap.Int("extensions", cfg.ExtensionSet().Len()),
		zap.Bool("project_cache", cfg.Storage.RedisURL != ""),
	)
	return a, nil
}

// Engine returns the decision engine.
func (a *App) Engine() *guardian.Engine { return a.engine }

// Projects returns the project catalog.
func (a *App) Projects() project.Backend { return a.catalog }

// Scope returns the scope builder.
func (a *App) Scope() *scope.Builder { return a.builder }

// Transcripts returns the queryable transcript table.
func (a *App) Transcripts() *transcript.Store { return a.archive }

// Config returns the config the app was assembled from.
func (a *App) Config() *config.Config { return a.cfg }

// Apply hot-swaps the reloadable parts of cfg: scope extensions, alert
// webhooks and redaction rules. Listeners, storage and the provider keep
// their startup settings.
func (a *App) Apply(cfg *config.Config, hash string) error {
	a.builder.SetExtensions(cfg.ExtensionSet())
	a.alerts.SetConfigs(cfg.Alerts)
	a.engine.SetRedactRules(cfg.RedactRules())
	a.logger.Info("applied reloaded config",
		zap.String("config_hash", hash),
		zap.Int("extensions", cfg.ExtensionSet().Len()),
		zap.Int("alerts", len(cfg.Alerts)),
	)
	return nil
}

// Close drains in-flight evaluations and audit writes, gives pending alerts
// up to alertGrace, then closes storage.
func (a *App) Close() error {
	var errs []error
	errs = append(errs, a.engine.Close())
	a.alerts.Close(alertGrace)
	errs = append(errs, a.journal.Close())
	errs = append(errs, a.catalog.Close())
	return errors.Join(errs...)
}
