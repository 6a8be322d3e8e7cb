// Package server initializes and runs the application: storage tiers,
// background workers, the public HTTP API and the metrics listener, with
// graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
	"github.com/cipherdrop/cipherdrop/internal/server/httpapi"
	"github.com/cipherdrop/cipherdrop/internal/server/metrics"
	"github.com/cipherdrop/cipherdrop/internal/server/services"
	"github.com/cipherdrop/cipherdrop/internal/server/shared/db"
	"github.com/cipherdrop/cipherdrop/internal/server/storage"
	"github.com/cipherdrop/cipherdrop/internal/server/token"
	"github.com/cipherdrop/cipherdrop/internal/server/workers"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager db.RepositoryManager

	cache    *cache.Cache
	provider storage.Provider
	metrics  *metrics.ServerMetrics

	fileService  *services.FileService
	queue        *workers.Queue
	synchronizer *workers.Synchronizer
	sweeper      *workers.Sweeper
	updater      *workers.MetricsUpdater
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	manager, err := db.NewPostgresRepositoryManager(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	provider, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	c, err := cache.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}
	if recovered, err := c.Recover(); err != nil {
		if !errors.Is(err, common.ErrorNoRecover) {
			return nil, fmt.Errorf("cache recover error: %w", err)
		}
		logger.Debug(ctx, "cache recovery skipped", "strategy", cfg.CacheStrategy)
	} else {
		logger.Info(ctx, "cache recovered", "entries", recovered)
	}

	repo := manager.Files()
	m := metrics.InitMetrics()
	queue := workers.NewQueue()
	svc := services.NewFileService(repo, c, provider,
		token.NewGenerator(repo, token.DefaultAccessTokenMinLength), queue, logger)

	return &App{
		config:       cfg,
		logger:       logger,
		manager:      manager,
		cache:        c,
		provider:     provider,
		metrics:      m,
		fileService:  svc,
		queue:        queue,
		synchronizer: workers.NewSynchronizer(queue, repo, c, provider, logger),
		sweeper:      workers.NewSweeper(repo, svc, logger),
		updater:      workers.NewMetricsUpdater(m, repo, c, provider, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, srv *http.Server) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "listener", name, "error", err)
		}
	}()

	app.logger.Info(ctx, "listening", "listener", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "listener failed", "listener", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app",
		"provider", app.config.StorageProvider, "cache", app.config.CacheStrategy)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.synchronizer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.updater.Run(ctx)
	}()

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Port),
		Handler: httpapi.NewRouter(app.fileService, app.config, app.metrics, app.logger),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "api", apiServer)
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.MetricsPort),
		Handler: metricsMux,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "metrics", metricsServer)
	}()

	wg.Wait()
	app.synchronizer.Wait()

	if err := app.manager.Close(); err != nil {
		app.logger.Error(ctx, "closing db failed", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
