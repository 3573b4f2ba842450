// Package productionhttp exposes production intake endpoints.
package productionhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petroledger/petroledger/internal/platform/httpx"
	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/shared"
)

// Handler wires intake endpoints.
type Handler struct {
	logger  *slog.Logger
	service *production.Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *production.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/entries", func(r chi.Router) {
		r.Post("/", h.createEntry)
		r.Get("/", h.listEntries)
	})
	r.Route("/receipts", func(r chi.Router) {
		r.Post("/", h.createReceipt)
		r.Get("/{id}", h.showReceipt)
	})
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var input production.CreateEntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	start, err1 := time.Parse(time.RFC3339, r.URL.Query().Get("period_start"))
	end, err2 := time.Parse(time.RFC3339, r.URL.Query().Get("period_end"))
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", "period_start and period_end must be RFC3339 timestamps")
		return
	}
	period, err := shared.NewPeriod(start, end)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
		return
	}
	entries, err := h.service.ListEntries(r.Context(), period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var input production.CreateReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	receipt, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) showReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr), errors.Is(err, shared.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, production.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, production.ErrDuplicateTicket):
		httpx.Problem(w, http.StatusConflict, "Duplicate Ticket", err.Error())
	default:
		h.logger.Error("production request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
