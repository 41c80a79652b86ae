// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/inspection-sync/internal/config"
	"github.com/bissquit/inspection-sync/internal/connectivity"
	"github.com/bissquit/inspection-sync/internal/kv"
	kvpostgres "github.com/bissquit/inspection-sync/internal/kv/postgres"
	"github.com/bissquit/inspection-sync/internal/kv/sqlite"
	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
	"github.com/bissquit/inspection-sync/internal/pkg/httputil"
	"github.com/bissquit/inspection-sync/internal/pkg/logging"
	"github.com/bissquit/inspection-sync/internal/pkg/metrics"
	"github.com/bissquit/inspection-sync/internal/pkg/postgres"
	"github.com/bissquit/inspection-sync/internal/remote"
	"github.com/bissquit/inspection-sync/internal/syncqueue"
	"github.com/bissquit/inspection-sync/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	closeLog      func() error
	store         kv.Store
	db            *pgxpool.Pool // nil unless the postgres driver is used
	monitor       *connectivity.Monitor
	engine        *syncqueue.Engine
	server        *http.Server
	metricsServer *http.Server

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a new application instance. Nothing runs until Run.
func New(cfg *config.Config) (*App, error) {
	logger, closeLog := logging.Setup(cfg.Log)
	slog.SetDefault(logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	app := &App{
		config:   cfg,
		logger:   logger,
		closeLog: closeLog,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	if err := app.openStore(); err != nil {
		bgCancel()
		_ = closeLog()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	prober, err := app.newProber()
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("create connectivity prober: %w", err)
	}
	app.monitor = connectivity.NewMonitor(prober, cfg.Connectivity.Interval)

	client := remote.NewClient(remote.Config{
		BaseURL:           cfg.API.URL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		PhotoDir:          cfg.API.PhotoDir,
		MaxPhotoBytes:     cfg.API.MaxPhotoBytes,
	})

	app.engine = syncqueue.NewEngine(app.store, client, syncqueue.EngineConfig{
		Interval:    cfg.Sync.Interval,
		Cooldown:    cfg.Sync.Cooldown,
		MaxAttempts: cfg.Sync.MaxAttempts,
		LockTTL:     cfg.Sync.LockTTL,
		KeyPrefix:   cfg.Storage.KeyPrefix,
	}, syncqueue.WithConnectivity(app.monitor))

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) openStore() error {
	cfg := a.config
	slog.Info("opening storage", "driver", cfg.Storage.Driver)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		slog.Warn("memory storage selected: the queue does not survive a restart")
		a.store = kv.NewMemoryStore()

	case config.DriverSQLite:
		store, err := sqlite.Open(a.bgCtx, cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.store = store

	case config.DriverPostgres:
		if err := postgres.Migrate(cfg.Database.URL, kvpostgres.Migrations, kvpostgres.MigrationsDir); err != nil {
			return err
		}

		connectCtx, cancel := context.WithTimeout(a.bgCtx, cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return err
		}
		a.db = db
		a.store = kvpostgres.NewStore(db)

		a.goBackground(a.collectDBMetrics)

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

func (a *App) newProber() (connectivity.Prober, error) {
	if a.config.Connectivity.ProbeURL == "" {
		slog.Info("no connectivity probe configured, assuming online")
		return connectivity.StaticProber{State: connectivity.State{Connected: true, Reachable: true}}, nil
	}
	prober, err := connectivity.NewHTTPProber(a.config.Connectivity.ProbeURL, a.config.Connectivity.Timeout)
	if err != nil {
		return nil, err
	}
	return prober, nil
}

// Engine returns the sync engine.
func (a *App) Engine() *syncqueue.Engine {
	return a.engine
}

// Monitor returns the connectivity monitor.
func (a *App) Monitor() *connectivity.Monitor {
	return a.monitor
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Run starts background sync and the HTTP servers. It blocks until the main
// server stops.
func (a *App) Run() error {
	if a.config.Sync.ResetClaimsOnStart {
		if err := a.engine.ResetOrphans(a.bgCtx); err != nil {
			a.logger.Warn("failed to reset orphaned claims", "error", err)
		} else {
			a.logger.Info("orphaned claims and attempts reset")
		}
	}

	// The first published state starts the engine when online.
	a.engine.WatchConnectivity(a.bgCtx, a.monitor)
	a.goBackground(a.monitor.Run)

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close stops the engine and background work and releases storage. It is
// used directly by one-shot commands that never call Run. Repeated calls
// return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.engine.Close()
		a.closeErr = a.closeResources()
	})
	return a.closeErr
}

func (a *App) closeResources() error {
	a.bgCancel()
	a.bgWG.Wait()

	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if err := a.closeLog(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) goBackground(fn func(ctx context.Context)) {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		fn(a.bgCtx)
	}()
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	syncHandler := syncqueue.NewHandler(a.engine,
		syncqueue.WithOriginPolicy(httputil.NewOriginPolicy(a.config.CORS.AllowedOrigins)))

	r.Route("/api/v1", func(r chi.Router) {
		syncHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	pinger, ok := a.store.(kv.Pinger)
	if !ok {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}
