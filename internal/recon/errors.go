package recon

import "errors"

// Error taxonomy for reconciliation runs. Entry-level errors are collected
// alongside a successful result; run-level errors abort before persistence.
var (
	// ErrOutOfRangeInput flags a production entry outside the validity
	// envelope. Recoverable: the entry is excluded and the run continues.
	ErrOutOfRangeInput = errors.New("recon: input out of range")

	// ErrNoData indicates no production entries exist for the period.
	ErrNoData = errors.New("recon: no production data for period")

	// ErrEmptyPeriod indicates the corrected field total is zero, so no
	// shrinkage factor can be derived.
	ErrEmptyPeriod = errors.New("recon: field net total is zero")

	// ErrNoAllocatableVolume indicates no partner carries a positive net
	// contribution.
	ErrNoAllocatableVolume = errors.New("recon: no allocatable volume")

	// ErrAllocationMismatch signals the rounded allocations do not sum to
	// the terminal volume. Always a logic defect, never an input problem.
	ErrAllocationMismatch = errors.New("recon: allocation sum mismatch")

	// ErrPersistenceFailed wraps storage errors. Retry policy belongs to
	// the caller.
	ErrPersistenceFailed = errors.New("recon: persistence failed")

	// ErrUnavailable indicates a transient collaborator failure.
	ErrUnavailable = errors.New("recon: collaborator unavailable")

	// ErrConflict indicates the receipt was already reconciled. Fatal.
	ErrConflict = errors.New("recon: receipt already reconciled")
)
