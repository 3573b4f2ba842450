package recon

// ComputeShrinkage derives the shrinkage factor from the corrected field
// total and the terminal measurement. Pure, no I/O. The factor is never
// clamped: values outside the band are flagged anomalous and passed through
// for the caller to judge.
func ComputeShrinkage(corrected []CorrectedEntry, terminalVolume float64, band Band) (ShrinkageResult, error) {
	var fieldTotal float64
	for _, ce := range corrected {
		fieldTotal += ce.NetVolume
	}
	if fieldTotal == 0 {
		return ShrinkageResult{}, ErrEmptyPeriod
	}

	factor := terminalVolume / fieldTotal
	return ShrinkageResult{
		FieldNetTotal:   fieldTotal,
		TerminalVolume:  terminalVolume,
		Factor:          factor,
		ShrinkageVolume: fieldTotal - terminalVolume,
		Anomalous:       !band.Contains(factor),
	}, nil
}
