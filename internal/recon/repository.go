package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petroledger/petroledger/internal/platform/db"
	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/shared"
)

// PGRepository adapts PostgreSQL to the engine's EntrySource and ResultStore
// interfaces and serves result lookups for the HTTP layer.
type PGRepository struct {
	pool    *pgxpool.Pool
	entries *production.PGRepository
}

// NewPGRepository constructs the repo.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, entries: production.NewPGRepository(pool)}
}

// FetchEntries loads the immutable entry snapshot for the period.
func (r *PGRepository) FetchEntries(ctx context.Context, period shared.Period) ([]production.ProductionEntry, error) {
	return r.entries.ListEntries(ctx, period)
}

// FetchReceipt loads the terminal receipt.
func (r *PGRepository) FetchReceipt(ctx context.Context, receiptID string) (production.TerminalReceipt, error) {
	return r.entries.GetReceipt(ctx, receiptID)
}

// SaveResult persists a finalized run. The unique index on receipt_id turns
// duplicate reconciliations into ErrConflict.
func (r *PGRepository) SaveResult(ctx context.Context, result ReconciliationResult) error {
	shrinkJSON, err := json.Marshal(result.Shrinkage)
	if err != nil {
		return fmt.Errorf("recon: marshal shrinkage: %w", err)
	}
	allocJSON, err := json.Marshal(result.Allocations)
	if err != nil {
		return fmt.Errorf("recon: marshal allocations: %w", err)
	}
	errsJSON, err := json.Marshal(result.EntryErrors)
	if err != nil {
		return fmt.Errorf("recon: marshal entry errors: %w", err)
	}

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reconciliation_runs
				(id, receipt_id, period_start, period_end, state, shrinkage, allocations, total_allocated, entry_errors, content_hash, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			result.ID, result.ReceiptID, result.Period.Start, result.Period.End, string(result.State),
			shrinkJSON, allocJSON, result.TotalAllocated.String(), errsJSON, result.ContentHash, result.GeneratedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: receipt %s", ErrConflict, result.ReceiptID)
			}
			return err
		}
		return nil
	})
}

// GetResult fetches a finalized run by id.
func (r *PGRepository) GetResult(ctx context.Context, id string) (ReconciliationResult, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, receipt_id, period_start, period_end, state, shrinkage, allocations, total_allocated, entry_errors, content_hash, generated_at
		FROM reconciliation_runs WHERE id = $1`, id)
	return scanResult(row)
}

// GetResultByReceipt fetches the run persisted for a receipt, if any.
func (r *PGRepository) GetResultByReceipt(ctx context.Context, receiptID string) (ReconciliationResult, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, receipt_id, period_start, period_end, state, shrinkage, allocations, total_allocated, entry_errors, content_hash, generated_at
		FROM reconciliation_runs WHERE receipt_id = $1`, receiptID)
	return scanResult(row)
}

func scanResult(row pgx.Row) (ReconciliationResult, error) {
	var (
		res        ReconciliationResult
		state      string
		shrinkJSON []byte
		allocJSON  []byte
		errsJSON   []byte
		total      string
	)
	err := row.Scan(&res.ID, &res.ReceiptID, &res.Period.Start, &res.Period.End, &state,
		&shrinkJSON, &allocJSON, &total, &errsJSON, &res.ContentHash, &res.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReconciliationResult{}, production.ErrNotFound
		}
		return ReconciliationResult{}, err
	}
	res.State = RunState(state)
	if err := json.Unmarshal(shrinkJSON, &res.Shrinkage); err != nil {
		return ReconciliationResult{}, fmt.Errorf("recon: unmarshal shrinkage: %w", err)
	}
	if err := json.Unmarshal(allocJSON, &res.Allocations); err != nil {
		return ReconciliationResult{}, fmt.Errorf("recon: unmarshal allocations: %w", err)
	}
	if err := json.Unmarshal(errsJSON, &res.EntryErrors); err != nil {
		return ReconciliationResult{}, fmt.Errorf("recon: unmarshal entry errors: %w", err)
	}
	res.TotalAllocated, err = decimal.NewFromString(total)
	if err != nil {
		return ReconciliationResult{}, fmt.Errorf("recon: parse total: %w", err)
	}
	return res, nil
}
