// Package server assembles the crawler's dependencies and runs them as a CLI or HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/api"
	"github.com/JakeFAU/professor-crawler/internal/clock/system"
	"github.com/JakeFAU/professor-crawler/internal/config"
	"github.com/JakeFAU/professor-crawler/internal/dispatcher"
	"github.com/JakeFAU/professor-crawler/internal/embedding"
	"github.com/JakeFAU/professor-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/professor-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/professor-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/professor-crawler/internal/headless/detector"
	"github.com/JakeFAU/professor-crawler/internal/id/uuid"
	"github.com/JakeFAU/professor-crawler/internal/llm"
	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/pipeline"
	"github.com/JakeFAU/professor-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/professor-crawler/internal/policy/simple"
	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/professor-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/professor-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/professor-crawler/internal/queue/memory"
	"github.com/JakeFAU/professor-crawler/internal/router"
	"github.com/JakeFAU/professor-crawler/internal/runs"
	gcsstorage "github.com/JakeFAU/professor-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/professor-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/professor-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/professor-crawler/internal/storage/postgres"
)

var (
	// ErrNoDatabase is returned by operations that need Postgres when no DSN is configured.
	ErrNoDatabase = errors.New("database is not configured")
	// ErrNoLLM is returned by operations that need a language model when the provider is none.
	ErrNoLLM = errors.New("llm provider is not configured")
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	catalog   *pipeline.Catalog
	browser   *headless.Browser
	completer *llm.Gemini
	fallback  *llm.Fallback
	embedder  professor.Embedder
	embedGem  *embedding.Gemini
	store     *pgstore.Store
	runStore  runs.Store
	gcs       *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
	queue     *queueMemory.Queue
	runner    *runs.Runner
	hub       *progress.Hub
	tally     *progresssinks.TallySink
}

// Build creates the application's dependencies from cfg. The caller owns logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.String("directory", cfg.Directory.Path),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	var err error
	app.catalog, err = pipeline.LoadCatalog(cfg.Directory.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog init failed: %w", err)
	}

	// Everything below acquires resources; release them if a later step fails.
	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	loader := app.setupLoader()
	if err = app.setupLLM(ctx, loader); err != nil {
		return nil, err
	}
	if err = app.setupEmbedder(ctx); err != nil {
		return nil, err
	}
	if err = app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	var emitter progress.Emitter
	if app.setupProgress() {
		emitter = app.hub
	}

	var fallback professor.InterestExtractor
	if app.fallback != nil {
		fallback = app.fallback
	}
	crawl := pipeline.New(fallback, pipeline.Config{
		RequireName:  cfg.Pipeline.RequireName,
		LinkFallback: cfg.Pipeline.LinkFallback,
		Strategy:     cfg.LLM.Strategy,
		Progress:     emitter,
	}, logger)

	deps := extract.Deps{Loader: loader, Logger: logger.Named("extract")}
	app.queue = queueMemory.NewQueue(cfg.Server.QueueDepth)
	runDeps := runs.Deps{
		Store:       app.runStore,
		Queue:       app.queue,
		Directories: app.catalog,
		Route: func(university string) (professor.Extractor, error) {
			return router.Route(university, deps)
		},
		Crawler:   crawl,
		Embedder:  app.embedder,
		Blobs:     blobs,
		Clock:     system.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Progress:  emitter,
	}
	if app.store != nil {
		runDeps.Professors = app.store
	}
	if publisher != nil {
		runDeps.Publisher = publisher
	}
	runCfg := runs.Config{
		SnapshotPrefix: cfg.Storage.Prefix,
		Topic:          cfg.PubSub.TopicName,
		Timeout:        cfg.RunTimeout(),
	}
	app.logger.Info("runner config",
		zap.String("snapshot_prefix", runCfg.SnapshotPrefix),
		zap.String("topic", runCfg.Topic),
		zap.Duration("run_timeout", runCfg.Timeout),
		zap.Bool("persistence", app.store != nil),
	)
	app.runner = runs.NewRunner(runDeps, runCfg, logger)

	ok = true
	return app, nil
}

// setupProgress starts the progress hub and reports whether it is running.
func (a *App) setupProgress() bool {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return false
	}
	a.tally = progresssinks.NewTallySink(a.cfg.Progress.MaxRuns)
	sinkList := []progress.Sink{a.tally}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:         a.logger,
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Bool("log_sink", a.cfg.Progress.LogEnabled),
	)
	return true
}

func (a *App) setupLoader() *extract.Loader {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: a.cfg.Fetch.RequestsPerSecond,
		Burst:             a.cfg.Fetch.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	}, limiter, a.logger).WithPolicy(simple.New(simple.Config{
		ForbiddenThreshold: a.cfg.Fetch.ForbiddenThreshold,
		Blocklist:          a.cfg.Fetch.BlockedHosts,
	}))
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Fetch.UserAgent))

	var renderer professor.Renderer
	if a.cfg.Headless.Enabled {
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second,
			WaitTimeout:       time.Duration(a.cfg.Headless.WaitTimeoutSeconds) * time.Second,
			Settle:            time.Duration(a.cfg.Headless.SettleMillis) * time.Millisecond,
			MaxPages:          a.cfg.Headless.MaxPages,
		}, limiter, a.logger)
		if err != nil {
			// Static extraction still works; script-rendered sites will come back empty.
			a.logger.Warn("headless browser init failed", zap.Error(err))
		} else {
			a.browser = browser
			renderer = browser
			a.logger.Info("using headless browser", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}

	var detect extract.Detector
	if renderer != nil {
		detect = detector.NewHeuristic(a.cfg.Headless.PromotionThreshold, a.cfg.Headless.ExtraMarkers...)
	}
	return extract.NewLoader(fetcher, renderer, detect, a.logger)
}

func (a *App) setupLLM(ctx context.Context, loader *extract.Loader) error {
	var completer llm.Completer
	switch a.cfg.LLM.Provider {
	case config.ProviderOllama:
		completer = llm.NewOllama(a.cfg.LLM.BaseURL, a.cfg.LLM.Model, &http.Client{Timeout: a.cfg.LLMTimeout()})
	case config.ProviderGemini:
		gem, err := llm.NewGemini(ctx, a.cfg.LLM.APIKey, a.cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("gemini init failed: %w", err)
		}
		a.completer = gem
		completer = gem
	default:
		a.logger.Warn("no LLM provider configured, interest fallback disabled")
		return nil
	}
	guarded := llm.NewGuarded(completer, llm.GuardConfig{
		Name:              a.cfg.LLM.Provider,
		RequestsPerMinute: a.cfg.LLM.RequestsPerMinute,
		Timeout:           a.cfg.LLMTimeout(),
	}, a.logger)
	a.fallback = llm.NewFallback(guarded, loader, llm.FallbackConfig{
		Strategy:        a.cfg.LLM.Strategy,
		MaxChars:        a.cfg.LLM.MaxChars,
		Concurrency:     a.cfg.LLM.Concurrency,
		MaxOutputTokens: a.cfg.LLM.MaxOutputTokens,
	}, a.logger)
	a.logger.Info("LLM fallback initialized",
		zap.String("provider", a.cfg.LLM.Provider),
		zap.String("model", a.cfg.LLM.Model),
		zap.String("strategy", a.cfg.LLM.Strategy),
	)
	return nil
}

func (a *App) setupEmbedder(ctx context.Context) error {
	if !a.cfg.Embedding.Enabled {
		a.embedder = embedding.Nop{}
		return nil
	}
	gem, err := embedding.NewGemini(ctx, a.cfg.Embedding.APIKey, a.cfg.Embedding.Model, a.cfg.Embedding.RequestsPerMinute)
	if err != nil {
		return fmt.Errorf("embedder init failed: %w", err)
	}
	a.embedGem = gem
	a.embedder = gem
	a.logger.Info("embedder initialized", zap.String("model", a.cfg.Embedding.Model))
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, persistence disabled and runs kept in memory")
		a.runStore = memoryStorage.NewRunStore()
		return nil
	}
	store, err := pgstore.NewStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		BatchSize:       a.cfg.DB.BatchSize,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("professor store init failed: %w", err)
	}
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema init failed: %w", err)
	}
	a.runStore = store.Runs()
	a.logger.Info("professor store initialized", zap.Int("batch_size", a.cfg.DB.BatchSize))
	return nil
}

func (a *App) setupStorage(ctx context.Context) (runs.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (runs.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, run notifications disabled")
		return nil, nil
	}
	publisher, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

// Catalog returns the configured university directories.
func (a *App) Catalog() *pipeline.Catalog {
	return a.catalog
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Crawl runs one university synchronously and returns the finished run.
// A run that does not succeed is returned together with an error.
func (a *App) Crawl(ctx context.Context, req runs.Request) (runs.Run, error) {
	run, err := a.runner.Create(ctx, req)
	if err != nil {
		return runs.Run{}, err
	}
	run = a.runner.Execute(ctx, runs.Item{RunID: run.ID, Request: req})
	if run.Status != runs.StatusSucceeded {
		return run, fmt.Errorf("run %s %s: %s", run.ID, run.Status, run.ErrorText)
	}
	return run, nil
}

// EmbedInterests embeds and stores the research interests of every stored professor at university.
func (a *App) EmbedInterests(ctx context.Context, university string) (professor.BatchReport, error) {
	if a.store == nil {
		return professor.BatchReport{}, ErrNoDatabase
	}
	return a.store.SaveResearchInterests(ctx, university, a.embedder)
}

// SyncUniversities uploads every configured directory and returns how many were written.
func (a *App) SyncUniversities(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, ErrNoDatabase
	}
	synced := 0
	for _, name := range a.catalog.Names() {
		if err := a.store.SaveUniversity(ctx, name, a.catalog.Raw(name)); err != nil {
			return synced, fmt.Errorf("sync %q: %w", name, err)
		}
		synced++
	}
	return synced, nil
}

// StoredUniversities lists universities previously synced to the database.
func (a *App) StoredUniversities(ctx context.Context) ([]professor.University, error) {
	if a.store == nil {
		return nil, ErrNoDatabase
	}
	return a.store.ListUniversities(ctx)
}

// Professors lists stored professors, optionally filtered by university.
func (a *App) Professors(ctx context.Context, university string) ([]professor.StoredProfessor, error) {
	if a.store == nil {
		return nil, ErrNoDatabase
	}
	return a.store.ListProfessors(ctx, university)
}

// ExtractMany runs schema extraction concurrently over profile URLs.
func (a *App) ExtractMany(ctx context.Context, urls []string) (map[string][]string, error) {
	if a.fallback == nil {
		return nil, ErrNoLLM
	}
	return a.fallback.ExtractMany(ctx, urls), nil
}

// Serve runs the HTTP API and run workers until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	opts := api.Options{
		APIKey:    apiKey,
		Supported: router.Supported(),
	}
	if a.tally != nil {
		opts.Progress = a.tally
	}
	apiServer := api.NewServer(a.runner, a.runStore, a.catalog, opts, a.logger)

	workers := max(1, a.cfg.Server.Workers)
	dispatch := dispatcher.Replicate(a.runner, workers)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("dispatcher started", zap.Int("workers", dispatch.Size()))
		dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-workersDone

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		cancel()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.completer != nil {
		if err := a.completer.Close(); err != nil {
			a.logger.Warn("gemini client close failed", zap.Error(err))
		}
	}
	if a.embedGem != nil {
		if err := a.embedGem.Close(); err != nil {
			a.logger.Warn("embedding client close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
