// Command api runs the time-savings HTTP service: the read API, the
// operational endpoints, and the background refresh scheduler, all in a
// single process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"timesaver/internal/api/handlers"
	"timesaver/internal/config"
	"timesaver/internal/core"
	"timesaver/internal/db"
	"timesaver/internal/ingest"
	"timesaver/internal/scheduler"
	"timesaver/internal/source"
	"timesaver/internal/stats"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting service",
		"service", cfg.Service,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"refresh_interval", cfg.Ingest.RefreshInterval.String(),
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	savingsRepo := db.NewSavingsRepo(pool)
	statsRepo := db.NewStatsRepo(pool)
	excludedRepo := db.NewExcludedRepo(pool)
	taskRepo := db.NewTaskRepo(pool)
	lockRepo := db.NewLockRepo(pool)

	taskClient := source.NewTaskClient(cfg.Source)

	parser := ingest.NewClassificationParser(cfg.Ingest.FallbackTeam, logger)
	normalizer := ingest.NewRecordNormalizer(cfg.Ingest.DropInvalidTimestamp, logger)
	pipeline := ingest.NewRefreshPipeline(taskClient, savingsRepo, excludedRepo, parser, normalizer, logger)
	reconciler := ingest.NewMigrationReconciler(taskRepo, logger)
	sampler := ingest.NewSampleGenerator(savingsRepo, logger)

	statsService := stats.NewService(statsRepo, savingsRepo, logger)

	sched := scheduler.New(pipeline, lockRepo, cfg.Ingest.RefreshInterval, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, &db.HealthProbe{Pool: pool})

	statsHandler := handlers.NewStatsHandler(statsService, logger)
	adminHandler := handlers.NewAdminHandler(sched, reconciler, sampler, cfg.Migration.BackwardClassification, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		statsHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	return runHTTPServer(srv, sched, logger)
}

// newLogger builds the process-wide structured logger. Output is JSON on
// stdout so log aggregation can parse it without configuration.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// runHTTPServer serves HTTP until SIGINT/SIGTERM, then drains in-flight
// requests, stops the scheduler, and releases server resources, each within
// the shutdown deadline.
func runHTTPServer(srv *core.Server, sched *scheduler.Scheduler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", srv.Config.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	sched.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
