// Package main is the entrypoint for the revid API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vehiclereid/revid/internal/analyzer"
	"github.com/vehiclereid/revid/internal/api"
	"github.com/vehiclereid/revid/internal/api/handler"
	mw "github.com/vehiclereid/revid/internal/api/middleware"
	"github.com/vehiclereid/revid/internal/artifact"
	"github.com/vehiclereid/revid/internal/cache"
	"github.com/vehiclereid/revid/internal/config"
	"github.com/vehiclereid/revid/internal/engine"
	"github.com/vehiclereid/revid/internal/joblog"
	"github.com/vehiclereid/revid/internal/live"
	"github.com/vehiclereid/revid/internal/store"
	"github.com/vehiclereid/revid/internal/video"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "analyzer_provider", cfg.Analyzer.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create the frame analyzer
	frameAnalyzer, err := analyzer.NewAnalyzer(cfg.Analyzer)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	slog.Info("analyzer initialized", "provider", frameAnalyzer.Name())

	// 6. Create stores
	pgStore := store.NewPostgresStore(pool)

	logStore, err := joblog.NewStore(cfg.Storage.LogDir)
	if err != nil {
		return fmt.Errorf("create log store: %w", err)
	}
	artifactStore, err := artifact.NewStore(cfg.Storage.ArtifactDir)
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}

	// 7. Build the batch pipeline
	pipeline, err := engine.New(engine.Dependencies{
		Store:     pgStore,
		Cache:     redisCache,
		Logs:      logStore,
		Artifacts: artifactStore,
		Extractor: video.NewFFmpegExtractor("", ""),
		Analyzer:  frameAnalyzer,
		Logger:    slog.Default(),
		VideoDir:  cfg.Storage.VideoDir,
		Pipeline:  cfg.Pipeline,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	if err := pipeline.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	pipeline.Start(ctx)
	slog.Info("pipeline started", "workers", cfg.Pipeline.MaxWorkers, "queue_size", cfg.Pipeline.QueueSize)

	// 8. Live session manager
	liveManager := live.NewManager(frameAnalyzer, cfg.Live, slog.Default())

	// 9. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler:        handler.NewHealthHandler(pgStore, redisCache),
		SubmitHandler:        handler.NewSubmitHandler(pipeline),
		ListJobsHandler:      handler.NewListJobsHandler(pipeline),
		GetJobHandler:        handler.NewGetJobHandler(pipeline),
		ResultHandler:        handler.NewResultHandler(pipeline),
		LogsHandler:          handler.NewLogsHandler(pipeline),
		ListArtifactsHandler: handler.NewListArtifactsHandler(pipeline),
		GetArtifactHandler:   handler.NewGetArtifactHandler(pipeline),
		LiveHandler:          handler.NewLiveHandler(liveManager, slog.Default()),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Workers observe ctx cancellation from the stopped signal context.
	pipeline.Wait()

	slog.Info("server stopped gracefully")
	return nil
}
