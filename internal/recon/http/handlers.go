// Package reconhttp exposes the reconciliation API.
package reconhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/petroledger/petroledger/internal/platform/httpx"
	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/recon"
	"github.com/petroledger/petroledger/internal/shared"
	"github.com/petroledger/petroledger/jobs"
)

// runLockTTL bounds how long a receipt stays locked if a run crashes.
const runLockTTL = 5 * time.Minute

// Runner executes a reconciliation run.
type Runner interface {
	Reconcile(ctx context.Context, receiptID string, period shared.Period) (recon.ReconciliationResult, error)
}

// ResultReader serves persisted results.
type ResultReader interface {
	GetResult(ctx context.Context, id string) (recon.ReconciliationResult, error)
	GetResultByReceipt(ctx context.Context, receiptID string) (recon.ReconciliationResult, error)
}

// Handler wires reconciliation endpoints.
type Handler struct {
	logger  *slog.Logger
	runner  Runner
	results ResultReader
	lock    *shared.RunLock
	jobs    *jobs.Client
}

// NewHandler constructs the handler. jobsClient may be nil to force
// synchronous runs; lock may be nil in tests.
func NewHandler(logger *slog.Logger, runner Runner, results ResultReader, lock *shared.RunLock, jobsClient *jobs.Client) *Handler {
	return &Handler{logger: logger, runner: runner, results: results, lock: lock, jobs: jobsClient}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconciliations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
	})
	r.Get("/receipts/{receiptID}/reconciliation", h.showByReceipt)
}

type createRequest struct {
	ReceiptID   string    `json:"receipt_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Async       bool      `json:"async"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if req.ReceiptID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "receipt_id is required")
		return
	}
	period, err := shared.NewPeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
		return
	}

	if req.Async && h.jobs != nil {
		if _, err := h.jobs.EnqueueReconcile(r.Context(), jobs.ReconcilePayload{
			ReceiptID:   req.ReceiptID,
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
		}); err != nil {
			h.logger.Error("enqueue reconcile", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"receipt_id": req.ReceiptID, "status": "queued"})
		return
	}

	if h.lock != nil {
		release, err := h.lock.Acquire(r.Context(), req.ReceiptID, runLockTTL)
		if err != nil {
			if errors.Is(err, shared.ErrRunLocked) {
				httpx.Problem(w, http.StatusConflict, "Run In Progress", err.Error())
				return
			}
			httpx.Problem(w, http.StatusServiceUnavailable, "Lock Unavailable", "")
			return
		}
		defer release()
	}

	result, err := h.runner.Reconcile(r.Context(), req.ReceiptID, period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recon.NewReport(result))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recon.NewReport(result))
}

func (h *Handler) showByReceipt(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.GetResultByReceipt(r.Context(), chi.URLParam(r, "receiptID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recon.NewReport(result))
}

// respondError maps the engine taxonomy onto HTTP statuses. Allocation
// mismatches stay 500: they are defects, not client problems.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recon.ErrNoData), errors.Is(err, production.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, recon.ErrEmptyPeriod), errors.Is(err, recon.ErrNoAllocatableVolume), errors.Is(err, recon.ErrOutOfRangeInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Period", err.Error())
	case errors.Is(err, recon.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Already Reconciled", err.Error())
	case errors.Is(err, recon.ErrUnavailable), errors.Is(err, recon.ErrPersistenceFailed):
		httpx.Problem(w, http.StatusServiceUnavailable, "Collaborator Unavailable", err.Error())
	default:
		h.logger.Error("reconciliation request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
