package production

import (
	"errors"
	"time"

	"github.com/petroledger/petroledger/internal/shared"
)

// Sentinel errors for the production module.
var (
	// ErrNotFound indicates the entry or receipt does not exist.
	ErrNotFound = errors.New("production: not found")
	// ErrDuplicateTicket indicates a receipt ticket number already registered.
	ErrDuplicateTicket = errors.New("production: duplicate ticket number")
)

// ProductionEntry is a validated field measurement for one partner.
// Immutable once stored; the reconciliation engine consumes it read-only.
type ProductionEntry struct {
	ID           string    `json:"id"`
	Partner      string    `json:"partner"`
	GrossVolume  float64   `json:"gross_volume_bbl"`
	BSWPercent   float64   `json:"bsw_percent"`
	TemperatureF float64   `json:"temperature_degf"`
	APIGravity   float64   `json:"api_gravity"`
	MeasuredAt   time.Time `json:"measured_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TerminalReceipt is the authoritative terminal measurement for a period.
type TerminalReceipt struct {
	ID           string        `json:"id"`
	TerminalName string        `json:"terminal_name"`
	Volume       float64       `json:"volume_bbl"`
	APIGravity   float64       `json:"api_gravity"`
	TicketNumber string        `json:"ticket_number"`
	Period       shared.Period `json:"period"`
	CreatedAt    time.Time     `json:"created_at"`
}

// CreateEntryInput captures an intake request before validation.
type CreateEntryInput struct {
	Partner      string    `json:"partner" validate:"required,min=1,max=64"`
	GrossVolume  float64   `json:"gross_volume_bbl" validate:"required,gt=0"`
	BSWPercent   float64   `json:"bsw_percent" validate:"gte=0,lt=100"`
	TemperatureF float64   `json:"temperature_degf" validate:"gte=-50,lte=200"`
	APIGravity   float64   `json:"api_gravity" validate:"gte=10,lte=100"`
	MeasuredAt   time.Time `json:"measured_at" validate:"required"`
}

// CreateReceiptInput captures a terminal receipt registration.
type CreateReceiptInput struct {
	TerminalName string    `json:"terminal_name" validate:"required,min=1,max=64"`
	Volume       float64   `json:"volume_bbl" validate:"required,gt=0"`
	APIGravity   float64   `json:"api_gravity" validate:"gte=10,lte=100"`
	TicketNumber string    `json:"ticket_number" validate:"required,min=1,max=64"`
	PeriodStart  time.Time `json:"period_start" validate:"required"`
	PeriodEnd    time.Time `json:"period_end" validate:"required,gtfield=PeriodStart"`
}
