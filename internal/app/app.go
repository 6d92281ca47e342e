// Package app initializes and orchestrates the main components of the
// Review Relay application. It wires together the configuration, pipeline
// components, dispatcher and HTTP server.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sevigo/review-relay/internal/config"
	"github.com/sevigo/review-relay/internal/core"
	"github.com/sevigo/review-relay/internal/db"
	"github.com/sevigo/review-relay/internal/github"
	"github.com/sevigo/review-relay/internal/jobs"
	"github.com/sevigo/review-relay/internal/llm"
	"github.com/sevigo/review-relay/internal/server"
	"github.com/sevigo/review-relay/internal/storage"
)

// App holds the main application components.
type App struct {
	cfg        *config.Config
	server     *server.Server
	dispatcher core.JobDispatcher
	logger     *slog.Logger
	cleanup    func()
}

// NewApp sets up the application with all its dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing Review Relay",
		"model", cfg.Model.Name,
		"diff_size_limit", cfg.DiffSizeLimitBytes,
		"max_workers", cfg.MaxWorkers)

	hostLimiter := minuteLimiter(cfg.GitHub.RateLimitPerMinute)
	modelLimiter := minuteLimiter(cfg.Model.RateLimitPerMinute)

	tokenSource, err := github.NewAppTokenSource(cfg, hostLimiter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}
	broker := github.NewTokenBroker(tokenSource, hostLimiter, logger)

	promptBuilder, err := llm.NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prompt builder: %w", err)
	}

	store := storage.NewNoopStore()
	cleanup := func() {}
	if cfg.DB != nil {
		dbConn, closeDB, err := db.NewDatabase(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store = storage.NewStore(dbConn.DB)
		cleanup = closeDB
	} else {
		logger.Info("no database configured, review receipts will not be persisted")
	}

	fetcher := github.NewDiffFetcher(cfg.DiffSizeLimitBytes, logger)
	reviewer := llm.NewReviewClient(cfg.Model, modelLimiter, logger)
	publisher := github.NewReviewPublisher(logger)

	reviewJob := jobs.NewReviewJob(broker, fetcher, promptBuilder, reviewer, publisher, store, logger)
	dispatcher := jobs.NewDispatcher(reviewJob, cfg.MaxWorkers, logger)
	httpServer := server.NewServer(cfg, dispatcher, logger)

	logger.Info("Review Relay initialized successfully")
	return &App{
		cfg:        cfg,
		server:     httpServer,
		dispatcher: dispatcher,
		logger:     logger,
		cleanup:    cleanup,
	}, nil
}

// Start runs the HTTP server and blocks until shutdown.
func (a *App) Start() error {
	a.logger.Info("starting Review Relay", "server_port", a.cfg.ServerPort)
	return a.server.Start()
}

// Stop shuts down the application cleanly: no new requests, then drain
// in-flight review jobs, then release resources.
func (a *App) Stop() error {
	a.logger.Info("shutting down Review Relay services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.dispatcher.Stop()
	a.cleanup()

	if serverErr != nil {
		return serverErr
	}
	a.logger.Info("Review Relay stopped successfully")
	return nil
}

// minuteLimiter builds a limiter for n requests per minute; n <= 0 disables
// limiting.
func minuteLimiter(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}
