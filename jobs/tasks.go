package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcile runs a reconciliation for one terminal receipt.
	TaskReconcile = "recon:run"
	// TaskNotifyWebhook delivers a finished report to a webhook.
	TaskNotifyWebhook = "notify:webhook"
)

// ReconcilePayload identifies the receipt and period to reconcile.
type ReconcilePayload struct {
	ReceiptID   string    `json:"receipt_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// NewReconcileTask constructs an Asynq task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, data), nil
}

// WebhookPayload carries the report body to deliver.
type WebhookPayload struct {
	URL    string          `json:"url"`
	RunID  string          `json:"run_id"`
	Report json.RawMessage `json:"report"`
}

// NewWebhookTask constructs an Asynq task.
func NewWebhookTask(payload WebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyWebhook, data), nil
}
