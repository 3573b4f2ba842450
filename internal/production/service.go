package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/petroledger/petroledger/internal/shared"
)

// Repository defines the persistence behaviour required by the service.
type Repository interface {
	InsertEntry(ctx context.Context, entry ProductionEntry) (ProductionEntry, error)
	ListEntries(ctx context.Context, period shared.Period) ([]ProductionEntry, error)
	InsertReceipt(ctx context.Context, receipt TerminalReceipt) (TerminalReceipt, error)
	GetReceipt(ctx context.Context, id string) (TerminalReceipt, error)
}

// Service validates and stores production entries and terminal receipts.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a production intake service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateEntry validates and stores a production entry.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (ProductionEntry, error) {
	if err := s.validate.Struct(input); err != nil {
		return ProductionEntry{}, fmt.Errorf("production: invalid entry: %w", err)
	}
	entry := ProductionEntry{
		ID:           uuid.NewString(),
		Partner:      input.Partner,
		GrossVolume:  input.GrossVolume,
		BSWPercent:   input.BSWPercent,
		TemperatureF: input.TemperatureF,
		APIGravity:   input.APIGravity,
		MeasuredAt:   input.MeasuredAt.UTC(),
		CreatedAt:    s.now(),
	}
	stored, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		return ProductionEntry{}, err
	}
	if s.logger != nil {
		s.logger.Info("production entry recorded",
			slog.String("entry_id", stored.ID),
			slog.String("partner", stored.Partner),
			slog.Float64("gross_bbl", stored.GrossVolume))
	}
	return stored, nil
}

// ListEntries returns all entries measured within the period.
func (s *Service) ListEntries(ctx context.Context, period shared.Period) ([]ProductionEntry, error) {
	return s.repo.ListEntries(ctx, period)
}

// CreateReceipt validates and stores a terminal receipt.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (TerminalReceipt, error) {
	if err := s.validate.Struct(input); err != nil {
		return TerminalReceipt{}, fmt.Errorf("production: invalid receipt: %w", err)
	}
	period, err := shared.NewPeriod(input.PeriodStart, input.PeriodEnd)
	if err != nil {
		return TerminalReceipt{}, err
	}
	receipt := TerminalReceipt{
		ID:           uuid.NewString(),
		TerminalName: input.TerminalName,
		Volume:       input.Volume,
		APIGravity:   input.APIGravity,
		TicketNumber: input.TicketNumber,
		Period:       period,
		CreatedAt:    s.now(),
	}
	stored, err := s.repo.InsertReceipt(ctx, receipt)
	if err != nil {
		return TerminalReceipt{}, err
	}
	if s.logger != nil {
		s.logger.Info("terminal receipt registered",
			slog.String("receipt_id", stored.ID),
			slog.String("terminal", stored.TerminalName),
			slog.Float64("volume_bbl", stored.Volume))
	}
	return stored, nil
}

// GetReceipt fetches a receipt by id.
func (s *Service) GetReceipt(ctx context.Context, id string) (TerminalReceipt, error) {
	if id == "" {
		return TerminalReceipt{}, ErrNotFound
	}
	return s.repo.GetReceipt(ctx, id)
}
