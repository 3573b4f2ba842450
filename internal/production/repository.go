package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petroledger/petroledger/internal/shared"
)

// PGRepository persists entries and receipts in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repo.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InsertEntry stores a validated production entry.
func (r *PGRepository) InsertEntry(ctx context.Context, entry ProductionEntry) (ProductionEntry, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO production_entries (id, partner, gross_volume_bbl, bsw_percent, temperature_degf, api_gravity, measured_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Partner, entry.GrossVolume, entry.BSWPercent, entry.TemperatureF, entry.APIGravity, entry.MeasuredAt, entry.CreatedAt)
	if err != nil {
		return ProductionEntry{}, err
	}
	return entry, nil
}

// ListEntries returns entries measured within [period.Start, period.End),
// ordered by partner then measurement time for reproducible runs.
func (r *PGRepository) ListEntries(ctx context.Context, period shared.Period) ([]ProductionEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, partner, gross_volume_bbl, bsw_percent, temperature_degf, api_gravity, measured_at, created_at
		FROM production_entries
		WHERE measured_at >= $1 AND measured_at < $2
		ORDER BY partner, measured_at, id`,
		period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ProductionEntry
	for rows.Next() {
		var e ProductionEntry
		if err := rows.Scan(&e.ID, &e.Partner, &e.GrossVolume, &e.BSWPercent, &e.TemperatureF, &e.APIGravity, &e.MeasuredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertReceipt stores a terminal receipt.
func (r *PGRepository) InsertReceipt(ctx context.Context, receipt TerminalReceipt) (TerminalReceipt, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO terminal_receipts (id, terminal_name, volume_bbl, api_gravity, ticket_number, period_start, period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		receipt.ID, receipt.TerminalName, receipt.Volume, receipt.APIGravity, receipt.TicketNumber, receipt.Period.Start, receipt.Period.End, receipt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TerminalReceipt{}, ErrDuplicateTicket
		}
		return TerminalReceipt{}, err
	}
	return receipt, nil
}

// GetReceipt fetches a receipt by id.
func (r *PGRepository) GetReceipt(ctx context.Context, id string) (TerminalReceipt, error) {
	var rec TerminalReceipt
	err := r.pool.QueryRow(ctx, `
		SELECT id, terminal_name, volume_bbl, api_gravity, ticket_number, period_start, period_end, created_at
		FROM terminal_receipts WHERE id = $1`, id).
		Scan(&rec.ID, &rec.TerminalName, &rec.Volume, &rec.APIGravity, &rec.TicketNumber, &rec.Period.Start, &rec.Period.End, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TerminalReceipt{}, ErrNotFound
		}
		return TerminalReceipt{}, err
	}
	return rec, nil
}
