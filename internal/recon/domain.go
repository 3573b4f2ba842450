package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petroledger/petroledger/internal/production"
	"github.com/petroledger/petroledger/internal/shared"
)

// RunState tracks the reconciliation state machine.
type RunState string

const (
	// StateFetching loads the entry snapshot and receipt.
	StateFetching RunState = "FETCHING"
	// StateCorrecting applies volumetric corrections per entry.
	StateCorrecting RunState = "CORRECTING"
	// StateShrinkageComputed derived the field-vs-terminal factor.
	StateShrinkageComputed RunState = "SHRINKAGE_COMPUTED"
	// StateAllocating distributes the terminal volume across partners.
	StateAllocating RunState = "ALLOCATING"
	// StateFinalized assembled and persisted the result.
	StateFinalized RunState = "FINALIZED"
	// StateFailed is terminal and reachable from any step.
	StateFailed RunState = "FAILED"
)

// CorrectedEntry derives from a ProductionEntry with corrections applied.
// NetVolume is always within [0, GrossVolume].
type CorrectedEntry struct {
	Entry          production.ProductionEntry
	NetVolume      float64
	WaterCutFactor float64
	TempCorrection float64
	APICorrection  float64
}

// ShrinkageResult compares the aggregated field net volume against the
// terminal measurement. Factor may be below or above 1; it is never clamped.
type ShrinkageResult struct {
	FieldNetTotal   float64 `json:"field_net_total"`
	TerminalVolume  float64 `json:"terminal_volume"`
	Factor          float64 `json:"factor"`
	ShrinkageVolume float64 `json:"shrinkage_volume"`
	Anomalous       bool    `json:"anomalous"`
}

// Band bounds the shrinkage factors considered routine. Factors outside the
// band mark the result anomalous; blocking is the caller's decision.
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether the factor falls inside the band.
func (b Band) Contains(factor float64) bool {
	return factor >= b.Low && factor <= b.High
}

// Allocation is one partner's share of the terminal volume.
type Allocation struct {
	Partner       string          `json:"partner"`
	NetVolume     float64         `json:"net_volume"`
	Ratio         float64         `json:"ratio"`
	Volume        decimal.Decimal `json:"volume"`
	RoundingUnits int64           `json:"rounding_units"`
}

// EntryError records a per-entry correction failure. The entry is excluded
// from the run and the failure reported alongside the result.
type EntryError struct {
	EntryID string `json:"entry_id"`
	Partner string `json:"partner"`
	Reason  string `json:"reason"`
}

// ReconciliationResult is the immutable outcome of one run. A new run for
// the same receipt produces a Conflict, never a mutation.
type ReconciliationResult struct {
	ID             string
	ReceiptID      string
	Period         shared.Period
	State          RunState
	Shrinkage      ShrinkageResult
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	EntryErrors    []EntryError
	GeneratedAt    time.Time
	ContentHash    string
}
