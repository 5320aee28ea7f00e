package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/database"
	"github.com/stemsi/assessment-runner/internal/handler"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/repository"
	"github.com/stemsi/assessment-runner/internal/router"
	"github.com/stemsi/assessment-runner/internal/service"
	"github.com/stemsi/assessment-runner/internal/validator"
	"github.com/stemsi/assessment-runner/internal/view"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Assessment Runner")

	if !cfg.AdminConfigured() {
		log.Warn().Msg("ADMIN_PASSWORD / ADMIN_PASSWORD_HASH not set, admin pages are disabled")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Load Question Catalog ─────────────────────────────────────────
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load question catalog")
	}
	log.Info().
		Str("version", cat.Version()).
		Int("questions", len(cat.Keys())).
		Int("required", cat.RequiredCount()).
		Msg("Question catalog loaded")

	// ─── Parse Templates ───────────────────────────────────────────────
	pages, err := view.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse templates")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	attemptService := service.NewAttemptService(attemptRepo, answerRepo, cat, log)
	adminService := service.NewAdminService(attemptRepo, answerRepo, cat, log)
	exportService := service.NewExportService(attemptRepo, answerRepo, cat)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Candidate: handler.NewCandidateHandler(attemptService, cat, log),
		WS:        handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		Admin:     handler.NewAdminHandler(adminService, cat, cfg.RetentionDays, log),
		Export:    handler.NewExportHandler(exportService, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg, rdb, pages, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	// No WriteTimeout: exports stream for as long as the table takes.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// Stop accepting new HTTP requests and let in-flight autosaves finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	database.LogPoolStats(log, pool)
	if rdb != nil {
		database.LogRedisStats(log, rdb)
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
