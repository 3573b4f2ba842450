package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/petroledger/petroledger/internal/jobs"
	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/shared"
)

const (
	// AuditAction identifies audit entries emitted by the engine.
	AuditAction = "recon_run"
	// AuditEntity names the audited entity.
	AuditEntity = "reconciliation_runs"
)

// EntrySource provides the immutable input snapshot for one run.
type EntrySource interface {
	FetchEntries(ctx context.Context, period shared.Period) ([]production.ProductionEntry, error)
	FetchReceipt(ctx context.Context, receiptID string) (production.TerminalReceipt, error)
}

// ResultStore persists finalized results. Implementations must reject a
// second result for the same receipt with ErrConflict.
type ResultStore interface {
	SaveResult(ctx context.Context, result ReconciliationResult) error
}

// AuditRecorder captures audit events. Optional.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EngineConfig carries the arithmetic policy for the engine.
type EngineConfig struct {
	Correction    CorrectionConfig
	Precision     int32
	ShrinkageBand Band
}

// DefaultEngineConfig returns the standard policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Correction:    DefaultCorrectionConfig(),
		Precision:     2,
		ShrinkageBand: Band{Low: 0.80, High: 1.05},
	}
}

// Engine orchestrates one reconciliation run: correction, shrinkage,
// allocation, finalization. Stateless between invocations; concurrent runs
// for different receipts need no coordination.
type Engine struct {
	source    EntrySource
	store     ResultStore
	audit     AuditRecorder
	corrector *Corrector
	cfg       EngineConfig
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
	now       func() time.Time
}

// NewEngine wires the engine's collaborators.
func NewEngine(source EntrySource, store ResultStore, audit AuditRecorder, logger *slog.Logger, cfg EngineConfig) *Engine {
	return &Engine{
		source:    source,
		store:     store,
		audit:     audit,
		corrector: NewCorrector(cfg.Correction),
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) {
	if clock != nil {
		e.now = clock
	}
}

// WithMetrics attaches job metrics so anomalous runs are counted regardless
// of whether the run came in over HTTP or the queue.
func (e *Engine) WithMetrics(metrics *jobmetrics.Metrics) {
	e.metrics = metrics
}

// Reconcile executes the full run for a terminal receipt. The run either
// finalizes atomically or fails without persisting anything.
func (e *Engine) Reconcile(ctx context.Context, receiptID string, period shared.Period) (ReconciliationResult, error) {
	if e == nil || e.source == nil || e.store == nil {
		return ReconciliationResult{}, fmt.Errorf("recon engine not initialised")
	}
	if receiptID == "" {
		return ReconciliationResult{}, fmt.Errorf("receipt id is required")
	}

	state := StateFetching
	receipt, err := e.source.FetchReceipt(ctx, receiptID)
	if err != nil {
		if errors.Is(err, production.ErrNotFound) {
			return e.fail(state, receiptID, fmt.Errorf("%w: receipt %s", ErrNoData, receiptID))
		}
		return e.fail(state, receiptID, fmt.Errorf("%w: fetch receipt: %v", ErrUnavailable, err))
	}
	entries, err := e.source.FetchEntries(ctx, period)
	if err != nil {
		return e.fail(state, receiptID, fmt.Errorf("%w: fetch entries: %v", ErrUnavailable, err))
	}
	if len(entries) == 0 {
		return e.fail(state, receiptID, ErrNoData)
	}

	state = StateCorrecting
	snapshot, entryErrors := filterToPeriod(entries, period)
	corrected, correctionErrors := e.correctAll(ctx, snapshot, receipt.APIGravity)
	entryErrors = append(entryErrors, correctionErrors...)
	sort.SliceStable(entryErrors, func(i, j int) bool {
		return entryErrors[i].EntryID < entryErrors[j].EntryID
	})
	if len(corrected) == 0 {
		return e.fail(state, receiptID, fmt.Errorf("%w: all %d entries excluded", ErrEmptyPeriod, len(entries)))
	}

	state = StateShrinkageComputed
	shrink, err := ComputeShrinkage(corrected, receipt.Volume, e.cfg.ShrinkageBand)
	if err != nil {
		return e.fail(state, receiptID, err)
	}
	if shrink.Anomalous {
		e.metrics.AddShrinkageAnomaly()
		e.log().Warn("shrinkage factor outside sane band",
			slog.String("receipt_id", receiptID),
			slog.Float64("factor", shrink.Factor),
			slog.Float64("band_low", e.cfg.ShrinkageBand.Low),
			slog.Float64("band_high", e.cfg.ShrinkageBand.High))
	}

	state = StateAllocating
	allocations, err := Allocate(corrected, shrink, e.cfg.Precision)
	if err != nil {
		return e.fail(state, receiptID, err)
	}

	result := ReconciliationResult{
		ID:          uuid.NewString(),
		ReceiptID:   receiptID,
		Period:      period,
		State:       StateFinalized,
		Shrinkage:   shrink,
		Allocations: allocations,
		EntryErrors: entryErrors,
		GeneratedAt: e.now(),
	}
	for _, a := range allocations {
		result.TotalAllocated = result.TotalAllocated.Add(a.Volume)
	}
	result.ContentHash = ContentHash(receiptID, period, shrink, allocations)

	if err := e.store.SaveResult(ctx, result); err != nil {
		if errors.Is(err, ErrConflict) {
			return e.fail(StateFinalized, receiptID, err)
		}
		return e.fail(StateFinalized, receiptID, fmt.Errorf("%w: %v", ErrPersistenceFailed, err))
	}
	e.recordAudit(ctx, result)

	e.log().Info("reconciliation finalized",
		slog.String("run_id", result.ID),
		slog.String("receipt_id", receiptID),
		slog.Int("partners", len(allocations)),
		slog.Int("excluded_entries", len(entryErrors)),
		slog.Float64("shrinkage_factor", shrink.Factor),
		slog.String("total_allocated", result.TotalAllocated.String()))
	return result, nil
}

// filterToPeriod drops entries the source returned outside the requested
// window. The snapshot must cover exactly [start, end); anything else is
// reported alongside the result, not silently included.
func filterToPeriod(entries []production.ProductionEntry, period shared.Period) ([]production.ProductionEntry, []EntryError) {
	snapshot := make([]production.ProductionEntry, 0, len(entries))
	var entryErrors []EntryError
	for _, entry := range entries {
		if !period.Contains(entry.MeasuredAt) {
			entryErrors = append(entryErrors, EntryError{
				EntryID: entry.ID,
				Partner: entry.Partner,
				Reason:  fmt.Sprintf("measured at %s outside period %s", entry.MeasuredAt.Format(time.RFC3339), period),
			})
			continue
		}
		snapshot = append(snapshot, entry)
	}
	return snapshot, entryErrors
}

// correctAll fans the pure per-entry correction out across workers and
// collects failures. Output order matches input order.
func (e *Engine) correctAll(ctx context.Context, entries []production.ProductionEntry, terminalAPI float64) ([]CorrectedEntry, []EntryError) {
	type outcome struct {
		corrected CorrectedEntry
		err       error
	}
	outcomes := make([]outcome, len(entries))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, entry := range entries {
		g.Go(func() error {
			ce, err := e.corrector.Correct(entry, terminalAPI)
			outcomes[i] = outcome{corrected: ce, err: err}
			return nil
		})
	}
	_ = g.Wait()

	corrected := make([]CorrectedEntry, 0, len(entries))
	var entryErrors []EntryError
	for i, out := range outcomes {
		if out.err != nil {
			entryErrors = append(entryErrors, EntryError{
				EntryID: entries[i].ID,
				Partner: entries[i].Partner,
				Reason:  out.err.Error(),
			})
			e.log().Warn("entry excluded from reconciliation",
				slog.String("entry_id", entries[i].ID),
				slog.String("partner", entries[i].Partner),
				slog.Any("error", out.err))
			continue
		}
		corrected = append(corrected, out.corrected)
	}
	return corrected, entryErrors
}

func (e *Engine) fail(state RunState, receiptID string, err error) (ReconciliationResult, error) {
	e.log().Error("reconciliation failed",
		slog.String("receipt_id", receiptID),
		slog.String("state", string(state)),
		slog.Any("error", err))
	return ReconciliationResult{ReceiptID: receiptID, State: StateFailed}, err
}

func (e *Engine) recordAudit(ctx context.Context, result ReconciliationResult) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, shared.AuditLog{
		Actor:    "recon-engine",
		Action:   AuditAction,
		Entity:   AuditEntity,
		EntityID: result.ID,
		Meta: map[string]any{
			"receipt_id":       result.ReceiptID,
			"partners":         len(result.Allocations),
			"shrinkage_factor": result.Shrinkage.Factor,
			"anomalous":        result.Shrinkage.Anomalous,
			"content_hash":     result.ContentHash,
		},
		At: e.now(),
	})
	if err != nil {
		e.log().Warn("audit record failed", slog.String("run_id", result.ID), slog.Any("error", err))
	}
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
