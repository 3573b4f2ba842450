package recon

import (
	"encoding/json"
	"time"
)

// Report is the boundary representation of a reconciliation result, shared
// by the HTTP layer and webhook notifications. Exact volumes render as
// JSON numbers without float conversion.
type Report struct {
	ReconciliationID  string             `json:"reconciliation_id"`
	TerminalReceiptID string             `json:"terminal_receipt_id"`
	PeriodStart       time.Time          `json:"period_start"`
	PeriodEnd         time.Time          `json:"period_end"`
	ShrinkageFactor   float64            `json:"shrinkage_factor"`
	Shrinkage         ShrinkageResult    `json:"shrinkage"`
	Allocations       []ReportAllocation `json:"allocations"`
	TotalAllocated    json.Number        `json:"total_allocated"`
	EntryErrors       []EntryError       `json:"entry_errors,omitempty"`
	ContentHash       string             `json:"content_hash"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// ReportAllocation is one partner line of the report.
type ReportAllocation struct {
	PartnerID       string      `json:"partner_id"`
	NetContribution float64     `json:"net_contribution"`
	Ratio           float64     `json:"ratio"`
	AllocatedVolume json.Number `json:"allocated_volume"`
}

// NewReport converts a result into its boundary shape.
func NewReport(result ReconciliationResult) Report {
	allocations := make([]ReportAllocation, len(result.Allocations))
	for i, a := range result.Allocations {
		allocations[i] = ReportAllocation{
			PartnerID:       a.Partner,
			NetContribution: a.NetVolume,
			Ratio:           a.Ratio,
			AllocatedVolume: json.Number(a.Volume.String()),
		}
	}
	return Report{
		ReconciliationID:  result.ID,
		TerminalReceiptID: result.ReceiptID,
		PeriodStart:       result.Period.Start,
		PeriodEnd:         result.Period.End,
		ShrinkageFactor:   result.Shrinkage.Factor,
		Shrinkage:         result.Shrinkage,
		Allocations:       allocations,
		TotalAllocated:    json.Number(result.TotalAllocated.String()),
		EntryErrors:       result.EntryErrors,
		ContentHash:       result.ContentHash,
		GeneratedAt:       result.GeneratedAt,
	}
}
