// Package app builds the long-lived services from configuration and runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/api"
	"github.com/JakeFAU/page-insights/internal/browser/headless"
	"github.com/JakeFAU/page-insights/internal/cache"
	memcache "github.com/JakeFAU/page-insights/internal/cache/memory"
	rediscache "github.com/JakeFAU/page-insights/internal/cache/redis"
	"github.com/JakeFAU/page-insights/internal/clock/system"
	"github.com/JakeFAU/page-insights/internal/config"
	"github.com/JakeFAU/page-insights/internal/extract"
	"github.com/JakeFAU/page-insights/internal/hash/sha256"
	"github.com/JakeFAU/page-insights/internal/id/uuid"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/page-insights/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/page-insights/internal/publisher/pubsub"
	"github.com/JakeFAU/page-insights/internal/resolver"
	gcsstorage "github.com/JakeFAU/page-insights/internal/storage/gcs"
	localstorage "github.com/JakeFAU/page-insights/internal/storage/local"
	memoryStorage "github.com/JakeFAU/page-insights/internal/storage/memory"
	pgstore "github.com/JakeFAU/page-insights/internal/storage/postgres"
	"github.com/JakeFAU/page-insights/internal/store"
	"github.com/JakeFAU/page-insights/internal/summary"
)

type closer struct {
	name  string
	close func() error
}

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      insights.Clock
	documents  store.DocumentStore
	cache      cache.Cache
	blobs      insights.BlobStore
	publisher  insights.Publisher
	browser    extract.Browser
	summarizer summary.Summarizer
	engine     *resolver.Engine
	apiServer  *api.Server
	checks     map[string]api.ReadinessCheck
	// closers run in reverse registration order.
	closers []closer
}

// Build creates the application's dependencies. On error every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		checks: map[string]api.ReadinessCheck{},
	}
	app.logger.Info("building application dependencies",
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("pubsub", cfg.PubSub.Driver),
		zap.Bool("extraction", cfg.Extraction.Enabled),
	)

	steps := []func(context.Context) error{
		app.setupDatabase,
		app.setupCache,
		app.setupStorage,
		app.setupPublisher,
		app.setupBrowser,
		app.setupSummarizer,
		app.setupEngine,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.closeInfrastructure()
			return nil, err
		}
	}

	app.apiServer = api.NewServer(api.Deps{
		Engine:     app.engine,
		Summarizer: app.summarizer,
		Cache:      app.cache,
		Logger:     logger.Named("api"),
		Checks:     app.checks,
	}, cfg)
	return app, nil
}

// Engine exposes the resolver engine for one-shot commands.
func (a *App) Engine() *resolver.Engine {
	return a.engine
}

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	grace := config.Seconds(a.cfg.Server.ShutdownSeconds)
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases every opened resource and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		pg, err := pgstore.NewDocumentStore(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			Schema:          a.cfg.Store.Schema,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.Store.MaxConnLifetimeMinutes) * time.Minute,
		}, a.clock)
		if err != nil {
			return fmt.Errorf("document store init failed: %w", err)
		}
		a.documents = pg
		a.checks["store"] = pg.Ping
		a.onClose("postgres", func() error { pg.Close(); return nil })
		a.logger.Info("postgres document store initialized", zap.String("schema", a.cfg.Store.Schema))
	default:
		a.logger.Warn("using in-memory document store; data is lost on restart")
		a.documents = memoryStorage.NewDocumentStore(a.clock)
	}
	return nil
}

func (a *App) setupCache(_ context.Context) error {
	switch a.cfg.Cache.Driver {
	case "redis":
		rc, err := rediscache.New(rediscache.Config{
			Addr:      a.cfg.Cache.Addr,
			Password:  a.cfg.Cache.Password,
			DB:        a.cfg.Cache.DB,
			PoolSize:  a.cfg.Cache.PoolSize,
			KeyPrefix: a.cfg.Cache.KeyPrefix,
		}, a.logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		a.cache = rc
		a.checks["cache"] = rc.Ping
		a.onClose("redis", rc.Close)
		a.logger.Info("using redis cache", zap.String("addr", a.cfg.Cache.Addr))
	case "memory":
		a.cache = memcache.New(a.clock)
	default:
		a.logger.Info("response cache disabled")
		a.cache = cache.Noop{}
	}
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "gcs":
		gcs, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = gcs
		a.onClose("gcs", gcs.Close)
		a.logger.Debug("GCS snapshot storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "local":
		local, err := localstorage.New(localstorage.Config{
			BaseDir: a.cfg.Storage.LocalDir,
			Prefix:  a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = local
		a.logger.Debug("local snapshot storage", zap.String("path", a.cfg.Storage.LocalDir))
	case "memory":
		a.blobs = memoryStorage.NewBlobStore()
	default:
		a.logger.Info("page snapshots disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Driver {
	case "gcp":
		pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		a.onClose("pubsub", pub.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.Resolver.AcquiredTopic),
		)
	case "memory":
		a.publisher = memorypublisher.New()
	default:
		a.logger.Info("acquisition events disabled")
	}
	return nil
}

func (a *App) setupBrowser(_ context.Context) error {
	if !a.cfg.Extraction.Enabled {
		a.logger.Warn("live extraction disabled; misses resolve to not found")
		a.browser = headless.Noop{}
		return nil
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Extraction.RequestsPerSecond,
		DefaultBurst: a.cfg.Extraction.Burst,
	})
	b, err := headless.New(headless.Config{
		BaseURL:           a.cfg.Extraction.BaseURL,
		MaxSessions:       a.cfg.Extraction.MaxSessions,
		UserAgent:         a.cfg.Extraction.UserAgent,
		NavigationTimeout: config.Seconds(a.cfg.Extraction.NavTimeoutSeconds),
		SignInTimeout:     config.Seconds(a.cfg.Extraction.SignInTimeoutSeconds),
		ExecPath:          a.cfg.Extraction.ChromePath,
	}, limiter, a.logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("headless browser init failed: %w", err)
	}
	a.browser = b
	a.onClose("browser", func() error { b.Close(); return nil })
	return nil
}

func (a *App) setupSummarizer(_ context.Context) error {
	scfg := summary.Config{
		BaseURL:     a.cfg.Summary.BaseURL,
		APIKey:      a.cfg.Summary.APIKey,
		Model:       a.cfg.Summary.Model,
		Temperature: a.cfg.Summary.Temperature,
	}
	if !scfg.Configured() {
		a.logger.Info("summaries disabled; no model endpoint configured")
		return nil
	}
	s, err := summary.New(scfg, a.clock, a.logger.Named("summary"))
	if err != nil {
		return fmt.Errorf("summarizer init failed: %w", err)
	}
	a.summarizer = s
	return nil
}

func (a *App) setupEngine(_ context.Context) error {
	ex := a.cfg.Extraction
	pipeline, err := extract.New(extract.Config{
		BaseURL:          ex.BaseURL,
		OrganizationWait: config.Seconds(ex.OrganizationWaitSecs),
		PostsWait:        config.Seconds(ex.PostsWaitSeconds),
		PeopleWait:       config.Seconds(ex.PeopleWaitSeconds),
		CommentsWait:     config.Seconds(ex.CommentsWaitSeconds),
		MaxPosts:         ex.MaxPosts,
		MaxPostScrolls:   ex.MaxPostScrolls,
		MaxPeople:        ex.MaxPeople,
		MaxComments:      ex.MaxComments,
		ScrollPause:      time.Duration(ex.ScrollPauseMillis) * time.Millisecond,
	}, extract.Deps{
		Logger: a.logger.Named("extract"),
		Clock:  a.clock,
		Hasher: sha256.New(),
		Blobs:  a.blobs,
	})
	if err != nil {
		return fmt.Errorf("extraction pipeline init failed: %w", err)
	}

	deps := resolver.Deps{
		Logger:    a.logger.Named("resolver"),
		Cache:     a.cache,
		Documents: a.documents,
		Extractor: pipeline,
		Browser:   a.browser,
		Credentials: extract.Credentials{
			Email:    a.cfg.Credentials.Email,
			Password: a.cfg.Credentials.Password,
		},
		IDs:   uuid.New(),
		Clock: a.clock,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	a.engine, err = resolver.New(resolver.Config{
		MaxPosts:      ex.MaxPosts,
		ListLimit:     a.cfg.Resolver.ListLimit,
		CommentPosts:  a.cfg.Resolver.CommentPosts,
		CacheTTL:      a.cfg.CacheTTL(),
		AcquiredTopic: a.cfg.Resolver.AcquiredTopic,
	}, deps)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	return nil
}
