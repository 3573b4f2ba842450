package recon

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/petroledger/petroledger/internal/jobs"
	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/shared"
)

type stubSource struct {
	entries    []production.ProductionEntry
	entriesErr error
	receipt    production.TerminalReceipt
	receiptErr error
}

func (s *stubSource) FetchEntries(ctx context.Context, period shared.Period) ([]production.ProductionEntry, error) {
	return s.entries, s.entriesErr
}

func (s *stubSource) FetchReceipt(ctx context.Context, receiptID string) (production.TerminalReceipt, error) {
	return s.receipt, s.receiptErr
}

type stubStore struct {
	saved   []ReconciliationResult
	saveErr error
}

func (s *stubStore) SaveResult(ctx context.Context, result ReconciliationResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, result)
	return nil
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (s *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func testPeriod(t *testing.T) shared.Period {
	t.Helper()
	p, err := shared.NewPeriod(
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return p
}

func newTestEngine(source *stubSource, store *stubStore, audit AuditRecorder) *Engine {
	e := NewEngine(source, store, audit, slog.New(slog.DiscardHandler), DefaultEngineConfig())
	e.WithClock(func() time.Time {
		return time.Date(2025, 7, 2, 8, 0, 0, 0, time.UTC)
	})
	return e
}

func TestEngineReconcileHappyPath(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{
			testEntry("alpha", 600, 0, 60, 35),
			testEntry("beta", 400, 0, 60, 35),
		},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 950, APIGravity: 35},
	}
	store := &stubStore{}
	audit := &stubAudit{}

	result, err := newTestEngine(source, store, audit).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)

	require.Equal(t, StateFinalized, result.State)
	require.Equal(t, "r-1", result.ReceiptID)
	require.NotEmpty(t, result.ID)
	require.NotEmpty(t, result.ContentHash)
	require.Empty(t, result.EntryErrors)
	require.Equal(t, time.Date(2025, 7, 2, 8, 0, 0, 0, time.UTC), result.GeneratedAt)

	require.InDelta(t, 0.95, result.Shrinkage.Factor, 1e-12)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, "alpha", result.Allocations[0].Partner)
	require.True(t, result.Allocations[0].Volume.Equal(mustDecimal(t, "570")))
	require.Equal(t, "beta", result.Allocations[1].Partner)
	require.True(t, result.Allocations[1].Volume.Equal(mustDecimal(t, "380")))
	require.True(t, result.TotalAllocated.Equal(mustDecimal(t, "950")))

	require.Len(t, store.saved, 1)
	require.Equal(t, result.ID, store.saved[0].ID)
	require.Len(t, audit.logs, 1)
	require.Equal(t, AuditAction, audit.logs[0].Action)
	require.Equal(t, result.ID, audit.logs[0].EntityID)
}

func TestEngineReconcileCollectsEntryErrors(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{
			testEntry("alpha", 600, 0, 60, 35),
			testEntry("beta", 400, 0, 500, 35), // temperature outside envelope
		},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 570, APIGravity: 35},
	}
	store := &stubStore{}

	result, err := newTestEngine(source, store, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)

	require.Equal(t, StateFinalized, result.State)
	require.Len(t, result.EntryErrors, 1)
	require.Equal(t, "entry-beta", result.EntryErrors[0].EntryID)
	require.Equal(t, "beta", result.EntryErrors[0].Partner)
	require.Contains(t, result.EntryErrors[0].Reason, "temperature")

	// Only the surviving entry participates in allocation.
	require.Len(t, result.Allocations, 1)
	require.Equal(t, "alpha", result.Allocations[0].Partner)
	require.True(t, result.TotalAllocated.Equal(mustDecimal(t, "570")))
}

func TestEngineReconcileExcludesEntriesOutsidePeriod(t *testing.T) {
	stale := testEntry("gamma", 500, 0, 60, 35)
	stale.MeasuredAt = time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)

	source := &stubSource{
		entries: []production.ProductionEntry{
			testEntry("alpha", 600, 0, 60, 35),
			stale,
		},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 570, APIGravity: 35},
	}
	store := &stubStore{}

	result, err := newTestEngine(source, store, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)

	require.Len(t, result.EntryErrors, 1)
	require.Equal(t, "entry-gamma", result.EntryErrors[0].EntryID)
	require.Contains(t, result.EntryErrors[0].Reason, "outside period")

	require.Len(t, result.Allocations, 1)
	require.Equal(t, "alpha", result.Allocations[0].Partner)
	require.InDelta(t, 0.95, result.Shrinkage.Factor, 1e-12)
}

func TestEngineCountsShrinkageAnomalies(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{testEntry("alpha", 1000, 0, 60, 35)},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 500, APIGravity: 35},
	}
	store := &stubStore{}

	registry := prometheus.NewRegistry()
	engine := newTestEngine(source, store, nil)
	engine.WithMetrics(jobmetrics.NewMetrics(registry))

	result, err := engine.Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)
	require.True(t, result.Shrinkage.Anomalous)
	require.Equal(t, StateFinalized, result.State)

	families, err := registry.Gather()
	require.NoError(t, err)
	var counted float64
	for _, mf := range families {
		if mf.GetName() == "petroledger_shrinkage_anomalies_total" {
			require.Len(t, mf.GetMetric(), 1)
			counted = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, counted)
}

func TestEngineReconcileAllEntriesExcluded(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{
			testEntry("alpha", 600, 0, 500, 35),
		},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 950, APIGravity: 35},
	}
	store := &stubStore{}

	result, err := newTestEngine(source, store, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.ErrorIs(t, err, ErrEmptyPeriod)
	require.Equal(t, StateFailed, result.State)
	require.Empty(t, store.saved)
}

func TestEngineReconcileNoData(t *testing.T) {
	t.Run("no entries", func(t *testing.T) {
		source := &stubSource{
			receipt: production.TerminalReceipt{ID: "r-1", Volume: 950, APIGravity: 35},
		}
		result, err := newTestEngine(source, &stubStore{}, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
		require.ErrorIs(t, err, ErrNoData)
		require.Equal(t, StateFailed, result.State)
	})

	t.Run("receipt missing", func(t *testing.T) {
		source := &stubSource{receiptErr: production.ErrNotFound}
		_, err := newTestEngine(source, &stubStore{}, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
		require.ErrorIs(t, err, ErrNoData)
	})
}

func TestEngineReconcileSourceUnavailable(t *testing.T) {
	source := &stubSource{
		receipt:    production.TerminalReceipt{ID: "r-1", Volume: 950, APIGravity: 35},
		entriesErr: errors.New("connection refused"),
	}
	_, err := newTestEngine(source, &stubStore{}, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEngineReconcileStoreConflict(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{testEntry("alpha", 600, 0, 60, 35)},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 570, APIGravity: 35},
	}
	store := &stubStore{saveErr: ErrConflict}

	result, err := newTestEngine(source, store, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, StateFailed, result.State)
}

func TestEngineReconcileStoreFailureWrapped(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{testEntry("alpha", 600, 0, 60, 35)},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 570, APIGravity: 35},
	}
	store := &stubStore{saveErr: errors.New("disk full")}

	_, err := newTestEngine(source, store, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.ErrorIs(t, err, ErrPersistenceFailed)
}

func TestEngineReconcileContentHashStable(t *testing.T) {
	source := &stubSource{
		entries: []production.ProductionEntry{
			testEntry("alpha", 600, 1.5, 75, 32),
			testEntry("beta", 400, 2.1, 82, 36),
		},
		receipt: production.TerminalReceipt{ID: "r-1", Volume: 910, APIGravity: 34},
	}

	first, err := newTestEngine(source, &stubStore{}, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)
	second, err := newTestEngine(source, &stubStore{}, nil).Reconcile(context.Background(), "r-1", testPeriod(t))
	require.NoError(t, err)

	// Run IDs differ, the derived content does not: allocations, ratios
	// and the hash over them must be bit-identical.
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.ContentHash, second.ContentHash)
	require.Equal(t, first.Allocations, second.Allocations)
	for i := range first.Allocations {
		require.Equal(t, first.Allocations[i].Ratio, second.Allocations[i].Ratio)
	}
}
