package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/petroledger/petroledger/internal/app"
	jobmetrics "github.com/petroledger/petroledger/internal/jobs"
	"github.com/petroledger/petroledger/internal/observability"
	"github.com/petroledger/petroledger/internal/platform/cache"
	"github.com/petroledger/petroledger/internal/platform/db"
	"github.com/petroledger/petroledger/internal/production"
	productionhttp "github.com/petroledger/petroledger/internal/production/http"
	"github.com/petroledger/petroledger/internal/recon"
	reconhttp "github.com/petroledger/petroledger/internal/recon/http"
	"github.com/petroledger/petroledger/internal/shared"
	"github.com/petroledger/petroledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	productionRepo := production.NewPGRepository(dbpool)
	productionService := production.NewService(productionRepo, logger)

	reconRepo := recon.NewPGRepository(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)
	engine := recon.NewEngine(reconRepo, reconRepo, auditLogger, logger, recon.EngineConfig{
		Correction: recon.CorrectionConfig{
			BSWMinPercent: cfg.BSWMinPercent,
			BSWMaxPercent: cfg.BSWMaxPercent,
			TempMinDegF:   cfg.TempMinDegF,
			TempMaxDegF:   cfg.TempMaxDegF,
			APIGravityMin: cfg.APIGravityMin,
			APIGravityMax: cfg.APIGravityMax,
		},
		Precision:     cfg.AllocPrecision,
		ShrinkageBand: recon.Band{Low: cfg.ShrinkageBandLow, High: cfg.ShrinkageBandHigh},
	})
	runLock := shared.NewRunLock(redisClient)
	metrics := observability.NewMetrics()
	engine.WithMetrics(jobmetrics.NewMetrics(metrics.Registerer()))

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ProductionHandler: productionhttp.NewHandler(logger, productionService),
		ReconHandler:      reconhttp.NewHandler(logger, engine, reconRepo, runLock, jobsClient),
		JobsHandler:       jobs.NewHandler(asynq.NewInspector(redisOpts), logger),
		Metrics:           metrics,
		Pool:              dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	logger.Info("shutdown complete")
}
