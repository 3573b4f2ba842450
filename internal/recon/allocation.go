package recon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate distributes the terminal volume across partners proportionally to
// their corrected net contribution. Rounding follows the largest-remainder
// method so the allocated volumes sum to the terminal volume exactly at the
// given precision; ties break by ascending partner ID. Output is ordered by
// partner ID regardless of input order.
func Allocate(corrected []CorrectedEntry, shrink ShrinkageResult, precision int32) ([]Allocation, error) {
	nets := groupByPartner(corrected)
	if len(nets) == 0 {
		return nil, ErrNoAllocatableVolume
	}

	partners := make([]string, 0, len(nets))
	for partner := range nets {
		partners = append(partners, partner)
	}
	sort.Strings(partners)

	// Sum in partner order, not map order: float addition is not
	// associative, and the ratios feed the content hash bit-for-bit.
	var fieldTotal float64
	for _, partner := range partners {
		fieldTotal += nets[partner]
	}
	if fieldTotal <= 0 {
		return nil, ErrNoAllocatableVolume
	}

	unit := decimal.New(1, -precision)
	target := decimal.NewFromFloat(shrink.TerminalVolume).Round(precision)
	total := decimal.NewFromFloat(fieldTotal)

	type share struct {
		idx  int
		frac decimal.Decimal
	}

	allocations := make([]Allocation, len(partners))
	shares := make([]share, len(partners))
	provisional := decimal.Zero
	for i, partner := range partners {
		net := decimal.NewFromFloat(nets[partner])
		raw := net.Div(total).Mul(target)
		floor := raw.Truncate(precision)
		provisional = provisional.Add(floor)
		shares[i] = share{idx: i, frac: raw.Sub(floor)}
		allocations[i] = Allocation{
			Partner:   partner,
			NetVolume: nets[partner],
			Ratio:     nets[partner] / fieldTotal,
			Volume:    floor,
		}
	}

	// Remainder is a whole number of precision units, bounded by the
	// partner count; anything else is a defect.
	remainder := target.Sub(provisional)
	if remainder.IsNegative() {
		return nil, ErrAllocationMismatch
	}
	units := remainder.Div(unit).IntPart()

	sort.SliceStable(shares, func(i, j int) bool {
		if cmp := shares[i].frac.Cmp(shares[j].frac); cmp != 0 {
			return cmp > 0
		}
		return allocations[shares[i].idx].Partner < allocations[shares[j].idx].Partner
	})
	for n := int64(0); n < units; n++ {
		a := &allocations[shares[n%int64(len(shares))].idx]
		a.Volume = a.Volume.Add(unit)
		a.RoundingUnits++
	}

	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.Volume)
	}
	if !sum.Equal(target) {
		return nil, ErrAllocationMismatch
	}
	return allocations, nil
}

// groupByPartner sums corrected net volumes per partner. Multiple entries
// for the same partner collapse into one contribution. Entries are summed
// in (partner, entry id) order so the same multiset yields bit-identical
// sums regardless of input ordering.
func groupByPartner(corrected []CorrectedEntry) map[string]float64 {
	ordered := make([]CorrectedEntry, len(corrected))
	copy(ordered, corrected)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Entry.Partner != ordered[j].Entry.Partner {
			return ordered[i].Entry.Partner < ordered[j].Entry.Partner
		}
		return ordered[i].Entry.ID < ordered[j].Entry.ID
	})

	nets := make(map[string]float64, len(ordered))
	for _, ce := range ordered {
		nets[ce.Entry.Partner] += ce.NetVolume
	}
	return nets
}
