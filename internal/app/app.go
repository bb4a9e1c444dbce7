// Package app wires the store, pipeline and scheduler from process config.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"wiresum/internal/classifier"
	"wiresum/internal/config"
	"wiresum/internal/content"
	"wiresum/internal/database"
	"wiresum/internal/feed"
	"wiresum/internal/llm"
	"wiresum/internal/metrics"
	"wiresum/internal/scheduler"
	"wiresum/internal/security/netutil"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

// App holds the long-lived components shared by the server and commands.
type App struct {
	Config    config.Config
	DB        *database.DB
	Logger    zerolog.Logger
	Engine    *classifier.Engine
	Enricher  *content.Enricher
	Syncer    *feed.Syncer
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry
}

// Option adjusts wiring before components are built.
type Option func(*options)

type options struct {
	oracle  classifier.Oracle
	sources []feed.Source
	guard   *netutil.Guard
}

// WithOracle replaces the chat completions client.
func WithOracle(o classifier.Oracle) Option {
	return func(opts *options) { opts.oracle = o }
}

// WithSources replaces the sources built from config.
func WithSources(sources ...feed.Source) Option {
	return func(opts *options) { opts.sources = sources }
}

// WithGuard replaces the outbound address guard.
func WithGuard(g netutil.Guard) Option {
	return func(opts *options) { opts.guard = &g }
}

// New opens the store and builds every component. The scheduler is
// returned stopped.
func New(cfg config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("error creating data directory: %w", err)
		}
	}
	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	a := &App{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Registry: metrics.NewRegistry(),
	}

	// Entry URLs come from third parties; feed URLs from the operator.
	extractGuard := netutil.Guard{}
	feedGuard := netutil.Guard{AllowLoopback: true}
	if o.guard != nil {
		extractGuard, feedGuard = *o.guard, *o.guard
	}

	var extractor content.Extractor
	switch {
	case cfg.FirecrawlAPIKey != "":
		extractor = content.NewFirecrawl(cfg.FirecrawlAPIKey, cfg.FirecrawlURL, cfg.HTTPTimeout)
	case cfg.LocalExtract:
		extractor = content.NewLocal(extractGuard, cfg.HTTPTimeout)
	default:
		logger.Warn().Msg("FIRECRAWL_API_KEY not set and local extraction disabled; classifying feed content as delivered")
	}
	a.Enricher = content.NewEnricher(db, extractor, cfg.HTTPTimeout, logger)

	oracle := o.oracle
	if oracle == nil {
		oracle = llm.NewClient(cfg.APIKey(), cfg.LLMBaseURL, cfg.HTTPTimeout)
	}
	var enricher classifier.Enricher
	if a.Enricher.Enabled() {
		enricher = a.Enricher
	}
	a.Engine = classifier.NewEngine(db, oracle, enricher, logger)

	sources := o.sources
	if sources == nil {
		if sources, err = buildSources(cfg, feedGuard, logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	a.Syncer = feed.NewSyncer(db, logger, sources...)

	a.Scheduler = scheduler.New(a.Syncer, a.Engine, db, scheduler.Options{
		ClassifyEvery: cfg.ClassifyEvery,
		ClassifyBatch: cfg.ClassifyBatch,
	}, logger)

	return a, nil
}

func buildSources(cfg config.Config, guard netutil.Guard, logger zerolog.Logger) ([]feed.Source, error) {
	var sources []feed.Source
	if cfg.FeedbinEnabled() {
		sources = append(sources, feed.NewFeedbin(cfg.FeedbinEmail, cfg.FeedbinPassword, cfg.FeedbinAPIURL, cfg.HTTPTimeout))
	}
	if len(cfg.FeedURLs) > 0 {
		rss, err := feed.NewRSS(cfg.FeedURLs, guard, cfg.HTTPTimeout, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, rss)
	}
	return sources, nil
}

// Start launches the background scheduler.
func (a *App) Start(ctx context.Context) error {
	return a.Scheduler.Start(ctx)
}

// Close stops the scheduler and closes the store.
func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.DB.Close()
}
