package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/petroledger/petroledger/internal/app"
	jobmetrics "github.com/petroledger/petroledger/internal/jobs"
	"github.com/petroledger/petroledger/internal/platform/cache"
	"github.com/petroledger/petroledger/internal/platform/db"
	"github.com/petroledger/petroledger/internal/recon"
	"github.com/petroledger/petroledger/internal/shared"
	"github.com/petroledger/petroledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	defer func() { _ = redisClient.Close() }()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobsClient.Close() }()

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
	engine.WithMetrics(jobmetrics.NewMetrics(nil))
	reconcileJob := recon.NewReconcileJob(engine, runLock, jobsClient, cfg.WebhookURL, logger)
	notifier := jobs.NewWebhookNotifier(logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskNotifyWebhook, Handler: notifier.Handle},
		},
	})
	if err != nil {
		logger.Error("worker setup", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shutdown complete")
}
