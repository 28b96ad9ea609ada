// Package app builds long-lived services from configuration, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/api"
	"github.com/JakeFAU/citypop-crawler/internal/cascade"
	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/config"
	"github.com/JakeFAU/citypop-crawler/internal/countries"
	collyfetcher "github.com/JakeFAU/citypop-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/citypop-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/citypop-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/citypop-crawler/internal/headless/detector"
	"github.com/JakeFAU/citypop-crawler/internal/metadata"
	"github.com/JakeFAU/citypop-crawler/internal/pipeline"
	"github.com/JakeFAU/citypop-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/citypop-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/citypop-crawler/internal/report"
	"github.com/JakeFAU/citypop-crawler/internal/source"
	"github.com/JakeFAU/citypop-crawler/internal/storage/gcs"
	"github.com/JakeFAU/citypop-crawler/internal/storage/local"
	"github.com/JakeFAU/citypop-crawler/internal/storage/memory"
	"github.com/JakeFAU/citypop-crawler/internal/storage/postgres"
	"github.com/JakeFAU/citypop-crawler/internal/telemetry"
)

// RunCompletedEvent tags run notifications on Pub/Sub.
const RunCompletedEvent = "citypop.run.completed"

// App holds the shared services for one process.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Runner   *pipeline.Runner
	Server   *api.Server
	Blobs    citypop.BlobStore
	RunStore citypop.RunStore

	// Publisher is nil when no Pub/Sub topic is configured.
	Publisher citypop.Publisher

	closers []func()
}

// New wires every service described by cfg. Call Close when done.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	})

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.PerHostRPS, DefaultBurst: 1})
	var static citypop.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	}, limiter)

	var headless citypop.Fetcher
	if cfg.Headless.Enabled {
		browser, herr := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: secs(cfg.Headless.NavTimeoutSec),
			WaitSelector:      cfg.Headless.WaitSelector,
		})
		if herr != nil {
			logger.Warn("headless fetcher init failed", zap.Error(herr))
		} else {
			headless = browser
			a.closers = append(a.closers, browser.Close)
			if cfg.Headless.PromoteStatic {
				static = promote.New(static, browser,
					detector.NewHeuristic(cfg.Headless.PromotionThreshold), logger.Named("promote"))
			}
		}
	}

	sources, err := source.Build(cfg.Sources, static, headless, logger.Named("source"))
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	table := metadata.DefaultTable()
	if cfg.Pipeline.MetadataFile != "" {
		table, err = metadata.LoadFile(cfg.Pipeline.MetadataFile, table)
		if err != nil {
			return nil, fmt.Errorf("load metadata: %w", err)
		}
	}

	extractor := cascade.New(sources, cascade.Options{
		MaxCities: cfg.Pipeline.MaxCities,
		Pacer:     cascade.FixedDelay(cfg.Delay()),
	}, logger.Named("cascade"))

	if a.Blobs, err = a.buildBlobStore(ctx); err != nil {
		return nil, err
	}
	if a.RunStore, err = a.buildRunStore(ctx); err != nil {
		return nil, err
	}
	if a.Publisher, err = a.buildPublisher(ctx); err != nil {
		return nil, err
	}

	a.Runner, err = pipeline.New(pipeline.Config{
		ArtifactPath: cfg.Output.Filename,
		Topic:        cfg.PubSub.TopicName,
		Report: report.Options{
			IncludeAltName: cfg.Report.IncludeAltName,
			SheetName:      cfg.Report.SheetName,
		},
	}, pipeline.Deps{
		Countries: countries.NewLoader(cfg.Pipeline.CountriesFile, cfg.Pipeline.Countries),
		Extractor: extractor,
		Resolver:  metadata.NewResolver(table),
		Blobs:     a.Blobs,
		Runs:      a.RunStore,
		Publisher: a.Publisher,
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.Server = api.NewServer(a.Runner, a.RunStore, cfg, logger.Named("api"))

	logger.Info("application services initialized",
		zap.Int("sources", len(sources)),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("headless", headless != nil),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.TopicName != ""),
		zap.Bool("tracing", cfg.Telemetry.Enabled),
	)
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context) (citypop.BlobStore, error) {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return store, nil
	case config.BackendLocal, "":
		store, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *App) buildRunStore(ctx context.Context) (citypop.RunStore, error) {
	if a.Config.DB.DSN == "" {
		return memory.NewRunStore(), nil
	}
	store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:      a.Config.DB.DSN,
		Table:    a.Config.DB.Table,
		MaxConns: a.Config.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init run store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("init run store: %w", err)
	}
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context) (citypop.Publisher, error) {
	if a.Config.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, RunCompletedEvent)
	a.closers = append(a.closers, func() {
		pub.Close()
		_ = client.Close()
	})
	return pub, nil
}

// AddCloser registers fn to run on Close, before the closers added earlier.
func (a *App) AddCloser(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order and flushes the
// logger. It is safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
