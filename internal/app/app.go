// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/api"
	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/clock/system"
	"github.com/JakeFAU/flight-fare-crawler/internal/config"
	"github.com/JakeFAU/flight-fare-crawler/internal/dispatcher"
	"github.com/JakeFAU/flight-fare-crawler/internal/export"
	"github.com/JakeFAU/flight-fare-crawler/internal/hash/sha256"
	"github.com/JakeFAU/flight-fare-crawler/internal/id/uuid"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
	"github.com/JakeFAU/flight-fare-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/flight-fare-crawler/internal/progress"
	"github.com/JakeFAU/flight-fare-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/flight-fare-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/flight-fare-crawler/internal/queue/memory"
	queuePubSub "github.com/JakeFAU/flight-fare-crawler/internal/queue/pubsub"
	"github.com/JakeFAU/flight-fare-crawler/internal/runner"
	"github.com/JakeFAU/flight-fare-crawler/internal/scraper/headless"
	"github.com/JakeFAU/flight-fare-crawler/internal/storage/gcs"
	"github.com/JakeFAU/flight-fare-crawler/internal/storage/memory"
	"github.com/JakeFAU/flight-fare-crawler/internal/storage/postgres"
	"github.com/JakeFAU/flight-fare-crawler/internal/telemetry"
	"github.com/JakeFAU/flight-fare-crawler/internal/worker"
)

// App holds all the shared, long-lived services for the application. It is
// built once at startup and closed by the command that created it.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   batch.Clock
	ids     batch.IDGenerator
	runner  *runner.Runner
	hub     *progress.Hub
	tracer  *sdktrace.TracerProvider
	jobs    jobs.Store
	records jobs.RecordReader
	pool    *pgxpool.Pool
	pubsub  *pubsub.Client
	closers []func(context.Context) error
}

type options struct {
	scraper    batch.Scraper
	pauser     batch.Pauser
	registerer prometheus.Registerer
	stores     map[string]batch.BlobStore
	pubsub     *pubsub.Client
	publisher  batch.Publisher
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithScraper replaces the chromedp scraper.
func WithScraper(s batch.Scraper) Option {
	return func(o *options) { o.scraper = s }
}

// WithPauser replaces the timer based pauser.
func WithPauser(p batch.Pauser) Option {
	return func(o *options) { o.pauser = p }
}

// WithRegisterer registers progress collectors on reg instead of the default
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBlobStore routes export URIs starting with prefix to store.
func WithBlobStore(prefix string, store batch.BlobStore) Option {
	return func(o *options) { o.stores[prefix] = store }
}

// WithPubSubClient reuses client instead of dialing pubsub.project_id.
func WithPubSubClient(client *pubsub.Client) Option {
	return func(o *options) { o.pubsub = client }
}

// WithPublisher announces finished batches on pubsub.topic through p
// instead of a pubsub client.
func WithPublisher(p batch.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New wires every service described by cfg. Anything opened before a
// failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{stores: map[string]batch.BlobStore{"memory": memory.NewBlobStore()}}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("initializing application services")

	a.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, telemetry.Options{Sampled: cfg.Telemetry.Tracing})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	recordStore, err := a.initStores(ctx)
	if err != nil {
		return nil, err
	}

	writerOpts := []export.Option{export.WithLogger(logger.Named("export"))}
	for prefix, store := range o.stores {
		writerOpts = append(writerOpts, export.WithStore(prefix, store))
	}
	if cfg.Storage.GCSBucket != "" {
		store, err := a.initGCS(ctx)
		if err != nil {
			return nil, err
		}
		writerOpts = append(writerOpts, export.WithStore("gs://"+cfg.Storage.GCSBucket, store))
	}
	sink := export.NewWriter(sha256.New(), writerOpts...)

	a.pubsub = o.pubsub
	publisher := o.publisher
	if publisher == nil && cfg.PubSub.Topic != "" {
		client, err := a.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		p := pubsubpublisher.New(client)
		a.onClose(func(context.Context) error { p.Close(); return nil })
		publisher = p
		logger.Info("publishing batch notifications", zap.String("topic", cfg.PubSub.Topic))
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	scraper := o.scraper
	if scraper == nil {
		s := headless.New(headless.Config{
			BaseURL:     cfg.Scraper.BaseURL,
			UserAgent:   cfg.Scraper.UserAgent,
			ExecPath:    cfg.Scraper.ChromePath,
			Headful:     !cfg.Scraper.Headless,
			StepTimeout: cfg.Scraper.StepTimeout(),
		}, ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
			Burst:             cfg.Scraper.Burst,
		}), logger.Named("scraper"))
		a.onClose(func(context.Context) error { s.Close(); return nil })
		scraper = s
	}
	pauser := o.pauser
	if pauser == nil {
		pauser = batch.TimerPauser{}
	}
	jitter := batch.RandJitter{}
	exec := batch.NewExecutor(scraper, pauser, jitter, logger.Named("executor"))
	scheduler := batch.NewScheduler(exec, pauser, jitter, logger.Named("scheduler"))

	a.runner, err = runner.New(scheduler, runner.Options{
		IDs:       a.ids,
		Clock:     a.clock,
		Sink:      sink,
		Store:     recordStore,
		Publisher: publisher,
		Topic:     cfg.PubSub.Topic,
		Emitter:   a.hub,
		Logger:    logger.Named("runner"),
	})
	if err != nil {
		return nil, fmt.Errorf("init runner: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStores(ctx context.Context) (batch.RecordStore, error) {
	if a.cfg.DB.DSN == "" {
		store := memory.NewJobStore()
		a.jobs, a.records = store, store
		a.logger.Info("using in-memory batch store")
		return store, nil
	}
	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.onClose(func(context.Context) error { pool.Close(); return nil })
	if a.cfg.DB.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
	}
	jobStore, err := postgres.NewJobStore(pool)
	if err != nil {
		return nil, err
	}
	recordStore, err := postgres.NewRecordStore(pool, a.cfg.DB.Table)
	if err != nil {
		return nil, err
	}
	a.jobs, a.records = jobStore, recordStore
	a.logger.Info("using postgres batch store", zap.String("table", a.cfg.DB.Table))
	return recordStore, nil
}

func (a *App) initGCS(ctx context.Context) (batch.BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	a.onClose(func(context.Context) error { return client.Close() })
	store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
	if err != nil {
		return nil, err
	}
	a.logger.Info("using gcs export store", zap.String("bucket", a.cfg.Storage.GCSBucket))
	return store, nil
}

func (a *App) pubsubClient(ctx context.Context) (*pubsub.Client, error) {
	if a.pubsub != nil {
		return a.pubsub, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.onClose(func(context.Context) error { return client.Close() })
	a.pubsub = client
	return client, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Jobs returns the batch job store.
func (a *App) Jobs() jobs.Store {
	return a.jobs
}

// Records returns the store holding flattened rows per batch.
func (a *App) Records() jobs.RecordReader {
	return a.records
}

// RunBatch runs one batch in the foreground with overrides applied to the
// configured policy.
func (a *App) RunBatch(ctx context.Context, req batch.Request, overrides batch.PolicyOverrides, opts runner.RunOptions) (runner.Outcome, error) {
	return a.runner.Run(ctx, req, overrides.Apply(a.cfg.Batch.Policy()), opts)
}

// Ready pings downstream dependencies.
func (a *App) Ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// NewQueue returns the configured job queue.
func (a *App) NewQueue(ctx context.Context) (jobs.Queue, error) {
	if a.cfg.Server.Queue != config.QueuePubSub {
		return queueMemory.NewQueue(a.cfg.Server.QueueDepth), nil
	}
	client, err := a.pubsubClient(ctx)
	if err != nil {
		return nil, err
	}
	q, err := queuePubSub.New(
		client.Topic(a.cfg.PubSub.QueueTopic),
		client.Subscription(a.cfg.PubSub.QueueSubscription),
		a.logger.Named("queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pubsub queue: %w", err)
	}
	return q, nil
}

// Service bundles what serve runs: the dispatcher and its HTTP front end.
type Service struct {
	Dispatcher *dispatcher.Dispatcher
	Handler    http.Handler
}

// NewService wires queue, workers, dispatcher and API server.
func (a *App) NewService(q jobs.Queue) *Service {
	policy := a.cfg.Batch.Policy()
	workers := make([]*worker.Worker, 0, a.cfg.Server.Workers)
	for i := 0; i < a.cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(
			q,
			a.jobs,
			a.runner,
			a.clock,
			policy,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	d := dispatcher.New(q, a.jobs, a.ids, a.clock, workers)
	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	srv := api.NewServer(d, a.jobs, a.records, api.Options{
		APIKey:         apiKey,
		RequestTimeout: a.cfg.RequestTimeout(),
		DefaultPolicy:  policy,
		DefaultShuffle: a.cfg.Batch.Shuffle,
		DefaultSinkURI: a.cfg.Storage.Sink,
		Ready:          a.Ready,
	}, a.logger)
	return &Service{Dispatcher: d, Handler: srv.Handler()}
}

// Serve runs the HTTP API and the worker pool until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	q, err := a.NewQueue(ctx)
	if err != nil {
		return err
	}
	svc := a.NewService(q)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           svc.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Server.Workers))
		svc.Dispatcher.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if runErr != nil {
		// The dispatcher only stops with its context; close the queue so
		// workers drain out.
		q.Close()
		return runErr
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}
	return nil
}

// Close gracefully shuts down all services in reverse start order.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("service close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
