// Package server builds the long-running service from configuration and
// manages its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/api"
	"github.com/JakeFAU/artexin/internal/clock/system"
	"github.com/JakeFAU/artexin/internal/config"
	"github.com/JakeFAU/artexin/internal/dispatcher"
	"github.com/JakeFAU/artexin/internal/handler"
	"github.com/JakeFAU/artexin/internal/id/jobid"
	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/metrics"
	memorypublisher "github.com/JakeFAU/artexin/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/artexin/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/artexin/internal/queue/memory"
	pgqueue "github.com/JakeFAU/artexin/internal/queue/postgres"
	pubsubqueue "github.com/JakeFAU/artexin/internal/queue/pubsub"
	gcsstorage "github.com/JakeFAU/artexin/internal/storage/gcs"
	localstorage "github.com/JakeFAU/artexin/internal/storage/local"
	memoryStorage "github.com/JakeFAU/artexin/internal/storage/memory"
	pgstore "github.com/JakeFAU/artexin/internal/storage/postgres"
	"github.com/JakeFAU/artexin/internal/telemetry"
	"github.com/JakeFAU/artexin/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the service's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	service  *jobs.Service
	dispatch *dispatcher.Dispatcher
	api      *api.Server
	pipeline *Pipeline
	pool     *pgxpool.Pool

	// closers run in reverse order on shutdown.
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Service exposes the job service.
func (a *App) Service() *jobs.Service {
	return a.service
}

// Build creates the application's dependencies. On error every dependency
// built so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     cfg.Telemetry.Tracing,
		ProjectID:   cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.onClose("telemetry", shutdown)

	logger.Info("building application dependencies")
	store, err := app.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	queue, err := app.setupQueue(ctx)
	if err != nil {
		return nil, err
	}
	mirror, err := app.setupMirror(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := app.setupNotifier(ctx)
	if err != nil {
		return nil, err
	}

	app.pipeline, err = NewPipeline(cfg, logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}
	app.onClose("pipeline", func(context.Context) error {
		app.pipeline.Close()
		return nil
	})

	clock := system.New()
	registry, err := handler.NewRegistry(
		handler.NewFetchable(handler.FetchableConfig{
			Collector:    app.pipeline.Collector,
			Reachability: app.pipeline.Reachability,
			Mirror:       mirror,
			MirrorPrefix: cfg.Artifacts.Prefix,
			Clock:        clock,
		}, logger),
		handler.NewStandalone(handler.StandaloneConfig{
			Packager:     app.pipeline.Packager,
			OutDir:       cfg.Output.Dir,
			Sign:         app.pipeline.Sign,
			Mirror:       mirror,
			MirrorPrefix: cfg.Artifacts.Prefix,
			Clock:        clock,
		}, logger),
	)
	if err != nil {
		return nil, fmt.Errorf("handler registry init failed: %w", err)
	}

	app.service = jobs.NewService(store, queue, registry, clock, jobid.New(), notifier,
		jobs.Config{NotifyTopic: cfg.Notify.Topic}, logger.Named("jobs"))
	app.dispatch = dispatcher.NewPool(queue, app.service, cfg.Worker.Concurrency,
		worker.Config{ErrorBackoff: cfg.ErrorBackoff()}, logger)
	app.api = api.NewServer(app.service, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		Ready:          app.ready,
	}, logger)

	logger.Info("application ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("artifacts", cfg.Artifacts.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.Int("workers", app.dispatch.Size()),
	)
	return app, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (a *App) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.cfg.Store.Migrate {
		if err := pgstore.Migrate(ctx, a.cfg.Store.DSN); err != nil {
			return nil, err
		}
		a.logger.Info("database migrations applied")
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Store.DSN,
		MaxConns:        a.cfg.Store.MaxConns,
		MinConns:        a.cfg.Store.MinConns,
		MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.onClose("postgres pool", func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (a *App) setupStore(ctx context.Context) (jobs.Store, error) {
	if a.cfg.Store.Backend != config.BackendPostgres {
		a.logger.Info("using in-memory job store")
		return memoryStorage.NewJobStore(), nil
	}
	pool, err := a.postgresPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	store, err := pgstore.NewJobStore(pool)
	if err != nil {
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	a.logger.Info("using postgres job store")
	return store, nil
}

func (a *App) setupQueue(ctx context.Context) (jobs.Queue, error) {
	switch a.cfg.Queue.Backend {
	case config.BackendPostgres:
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue init failed: %w", err)
		}
		q, err := pgqueue.New(pool, pgqueue.Config{
			Table:        a.cfg.Queue.Table,
			PollInterval: a.cfg.PollInterval(),
			Lease:        a.cfg.QueueLease(),
		})
		if err != nil {
			return nil, fmt.Errorf("queue init failed: %w", err)
		}
		a.logger.Info("using postgres queue", zap.String("table", a.cfg.Queue.Table))
		return q, nil
	case config.BackendPubSub:
		q, err := pubsubqueue.Dial(ctx, pubsubqueue.Config{
			ProjectID:    a.cfg.Queue.ProjectID,
			Topic:        a.cfg.Queue.Topic,
			Subscription: a.cfg.Queue.Subscription,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("queue init failed: %w", err)
		}
		a.onClose("pubsub queue", func(context.Context) error { return q.Close() })
		a.logger.Info("using pubsub queue",
			zap.String("project", a.cfg.Queue.ProjectID),
			zap.String("subscription", a.cfg.Queue.Subscription),
		)
		return q, nil
	default:
		q := queueMemory.NewQueue(a.cfg.Worker.QueueDepth)
		a.onClose("memory queue", func(context.Context) error {
			q.Close()
			return nil
		})
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Worker.QueueDepth))
		return q, nil
	}
}

func (a *App) setupMirror(ctx context.Context) (jobs.ArtifactStore, error) {
	switch a.cfg.Artifacts.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Artifacts.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs client", func(context.Context) error { return store.Close() })
		a.logger.Info("mirroring archives to GCS", zap.String("bucket", a.cfg.Artifacts.Bucket))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Artifacts.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("mirroring archives locally", zap.String("path", a.cfg.Artifacts.BaseDir))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("mirroring archives in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupNotifier(ctx context.Context) (jobs.Notifier, error) {
	switch a.cfg.Notify.Backend {
	case config.BackendPubSub:
		pub, err := gcppublisher.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub publisher", func(context.Context) error { return pub.Close() })
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
		return pub, nil
	case config.BackendMemory:
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}

// Run serves the API and runs the workers until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-done
	return a.Close(shutdownCtx)
}

// RunWorkers runs only the dispatcher until ctx is canceled or a termination
// signal arrives.
func (a *App) RunWorkers(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
	a.dispatch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Close(shutdownCtx)
}

// Close releases every dependency in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	a.close(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
