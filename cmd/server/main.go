package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/attempt"
	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/database"
	"github.com/proctorix/examgate/internal/guard"
	"github.com/proctorix/examgate/internal/handler"
	"github.com/proctorix/examgate/internal/integrity"
	"github.com/proctorix/examgate/internal/logger"
	"github.com/proctorix/examgate/internal/router"
	"github.com/proctorix/examgate/internal/service"
	"github.com/proctorix/examgate/internal/token"
	"github.com/proctorix/examgate/internal/upstream"
	"github.com/proctorix/examgate/internal/validator"
	"github.com/proctorix/examgate/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("upstream", cfg.UpstreamBaseURL).
		Msg("Starting ExamGate")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Token Store and Refresh Coordinator ───────────────────────────
	authClient := upstream.NewAuthClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, log)
	store := token.NewStore(token.NewRedisPersistence(rdb))
	coord := token.NewCoordinator(store, authClient.Refresh, log)

	// ─── Upstream Pipeline and Clients ─────────────────────────────────
	pipeline := upstream.NewPipeline(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, cfg.RefreshSkew, store, coord, log)
	examClient := upstream.NewExamClient(pipeline)
	biometricClient := upstream.NewBiometricClient(pipeline)

	// ─── Attempt Infrastructure ────────────────────────────────────────
	registry := attempt.NewRegistry()
	markers := integrity.NewRedisMarkerStore(rdb)
	queue := worker.NewQueue(rdb)

	// A terminated session takes its live attempts down with it.
	coord.OnTerminate(func(sid string) {
		registry.CloseSession(sid)
	})

	// ─── Initialize Services ───────────────────────────────────────────
	sessionService := service.NewSessionService(store, coord, authClient, biometricClient, rdb, log)
	attemptService := service.NewAttemptService(service.AttemptServiceConfig{
		Exam:      examClient,
		Biometric: biometricClient,
		Pipeline:  pipeline,
		Registry:  registry,
		Markers:   markers,
		Queue:     queue,
		Grace:     cfg.GraceWindow,
		Strikes:   cfg.StrikeBudget,
		MediaRate: cfg.MonitorEventsPerSec,
	}, log)

	sessionGuard := guard.New(sessionService, cfg.GuardDebounce, log)

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, int((24 * time.Hour).Seconds()), cfg.GinMode == "release"),
		Attempt: handler.NewAttemptHandler(attemptService),
		Proctor: handler.NewProctorHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	activityWorker := worker.NewActivityWorker(pool, rdb, log)

	go violationWorker.Start(workerCtx)
	go activityWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(sessionGuard, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
