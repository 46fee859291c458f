// Package main is the entry point for the hubcrawl server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsmap/hubcrawl/internal/config"
	"github.com/newsmap/hubcrawl/internal/database"
	"github.com/newsmap/hubcrawl/internal/fetch"
	"github.com/newsmap/hubcrawl/internal/httpapi"
	"github.com/newsmap/hubcrawl/internal/jobs"
	"github.com/newsmap/hubcrawl/internal/logging"
	"github.com/newsmap/hubcrawl/internal/ops"
	"github.com/newsmap/hubcrawl/internal/predict"
	"github.com/newsmap/hubcrawl/internal/probe"
	"github.com/newsmap/hubcrawl/internal/repository"
	"github.com/newsmap/hubcrawl/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting hubcrawl",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	// Jobs live in memory, so a restart leaves their event histories open.
	staleCount, err := jobs.MarkStaleTasksInterrupted(context.Background(), repos.TaskEvent, logger)
	if err != nil {
		logger.Warn("failed to close stale task histories", "error", err)
	} else if staleCount > 0 {
		logger.Info("closed stale task histories", "count", staleCount)
	}

	bus := jobs.NewBus(repos.TaskEvent, cfg.EventBatchThreshold, logger)
	registry := jobs.NewRegistry(bus, cfg.AllowMultiJobs, logger)

	analyzers := predict.NewAnalyzers()
	detector := probe.NewDetector(
		fetch.NewClient(cfg.UserAgent, cfg.RateLimit, 0),
		cfg.UserAgent,
		cfg.FetchTimeout,
		logger,
	)

	facade := ops.NewFacade(cfg, repos, analyzers, bus, registry, logger)
	handlers := httpapi.NewHandlers(facade, registry, bus, repos.TaskEvent, detector, logger)
	router := httpapi.NewRouter(cfg, handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		// Running crawls abort cooperatively, then their jobs finish.
		for _, job := range registry.List() {
			if job.Status == jobs.StatusRunning || job.Status == jobs.StatusPaused {
				_ = registry.Stop(job.ID)
			}
		}
		registry.Wait()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
