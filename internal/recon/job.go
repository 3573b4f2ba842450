package recon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/petroledger/petroledger/internal/jobs"
	"github.com/petroledger/petroledger/internal/shared"
	"github.com/petroledger/petroledger/jobs"
)

// jobLockTTL bounds the receipt lock held by a background run.
const jobLockTTL = 5 * time.Minute

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReconcileJob processes queued reconciliation tasks.
type ReconcileJob struct {
	engine     *Engine
	lock       *shared.RunLock
	jobs       *jobs.Client
	webhookURL string
	logger     *slog.Logger
}

// NewReconcileJob constructs the job handler. jobsClient and webhookURL are
// optional; without them no notification is emitted.
func NewReconcileJob(engine *Engine, lock *shared.RunLock, jobsClient *jobs.Client, webhookURL string, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{engine: engine, lock: lock, jobs: jobsClient, webhookURL: webhookURL, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract for TaskReconcile.
func (j *ReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	tracker := defaultJobMetrics.Track(jobs.TaskReconcile)
	var payload jobs.ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	period, err := shared.NewPeriod(payload.PeriodStart, payload.PeriodEnd)
	if err != nil {
		return tracker.End(asynq.SkipRetry)
	}

	if j.lock != nil {
		release, err := j.lock.Acquire(ctx, payload.ReceiptID, jobLockTTL)
		if err != nil {
			// A held lock means another worker owns this receipt; either
			// way the task retries later.
			return tracker.End(err)
		}
		defer release()
	}

	result, err := j.engine.Reconcile(ctx, payload.ReceiptID, period)
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNoData) ||
			errors.Is(err, ErrEmptyPeriod) || errors.Is(err, ErrNoAllocatableVolume) {
			// Input-determined outcomes never change on retry.
			if j.logger != nil {
				j.logger.Warn("reconciliation task dropped",
					slog.String("receipt_id", payload.ReceiptID),
					slog.Any("error", err))
			}
			return tracker.End(asynq.SkipRetry)
		}
		return tracker.End(err)
	}

	j.notify(ctx, result)
	return tracker.End(nil)
}

func (j *ReconcileJob) notify(ctx context.Context, result ReconciliationResult) {
	if j.jobs == nil || j.webhookURL == "" {
		return
	}
	report, err := json.Marshal(NewReport(result))
	if err != nil {
		return
	}
	if _, err := j.jobs.EnqueueWebhook(ctx, jobs.WebhookPayload{
		URL:    j.webhookURL,
		RunID:  result.ID,
		Report: report,
	}); err != nil && j.logger != nil {
		j.logger.Warn("enqueue webhook", slog.String("run_id", result.ID), slog.Any("error", err))
	}
}
