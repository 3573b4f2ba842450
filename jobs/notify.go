package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

// WebhookNotifier posts finished reconciliation reports to stakeholders.
type WebhookNotifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier constructs the notifier.
func NewWebhookNotifier(logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Handle fulfils the asynq.HandlerFunc contract for TaskNotifyWebhook.
// Delivery failures return an error so asynq retries with backoff.
func (n *WebhookNotifier) Handle(ctx context.Context, task *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.URL == "" || len(payload.Report) == 0 {
		return asynq.SkipRetry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Report))
	if err != nil {
		return asynq.SkipRetry
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: webhook delivery: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("jobs: webhook delivery: status %d", resp.StatusCode)
	}

	if n.logger != nil {
		n.logger.Info("webhook delivered",
			slog.String("run_id", payload.RunID),
			slog.Int("status", resp.StatusCode))
	}
	return nil
}
