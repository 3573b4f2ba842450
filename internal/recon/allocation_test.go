package recon

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func correctedNetID(partner, id string, net float64) CorrectedEntry {
	ce := correctedNet(partner, net)
	ce.Entry.ID = id
	return ce
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestAllocateProportionalSplit(t *testing.T) {
	corrected := []CorrectedEntry{
		correctedNet("alpha", 600),
		correctedNet("beta", 400),
	}
	shrink := ShrinkageResult{FieldNetTotal: 1000, TerminalVolume: 950, Factor: 0.95}

	allocs, err := Allocate(corrected, shrink, 2)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	require.Equal(t, "alpha", allocs[0].Partner)
	require.True(t, allocs[0].Volume.Equal(mustDecimal(t, "570")), "got %s", allocs[0].Volume)
	require.InDelta(t, 0.6, allocs[0].Ratio, 1e-12)

	require.Equal(t, "beta", allocs[1].Partner)
	require.True(t, allocs[1].Volume.Equal(mustDecimal(t, "380")), "got %s", allocs[1].Volume)
	require.InDelta(t, 0.4, allocs[1].Ratio, 1e-12)
}

func TestAllocateSinglePartnerTakesEverything(t *testing.T) {
	shrink := ShrinkageResult{FieldNetTotal: 1000, TerminalVolume: 953.17}
	allocs, err := Allocate([]CorrectedEntry{correctedNet("solo", 1000)}, shrink, 2)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, 1.0, allocs[0].Ratio)
	require.True(t, allocs[0].Volume.Equal(mustDecimal(t, "953.17")), "got %s", allocs[0].Volume)
}

func TestAllocateSumsExactlyToTerminalVolume(t *testing.T) {
	corrected := []CorrectedEntry{
		correctedNet("alpha", 333.333),
		correctedNet("beta", 287.91),
		correctedNet("gamma", 104.6),
		correctedNet("delta", 512.0007),
	}
	shrink := ShrinkageResult{TerminalVolume: 1234.56}

	allocs, err := Allocate(corrected, shrink, 2)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range allocs {
		sum = sum.Add(a.Volume)
	}
	require.True(t, sum.Equal(mustDecimal(t, "1234.56")), "got %s", sum)
}

func TestAllocateLargestRemainderTieBreaksByPartnerID(t *testing.T) {
	// Three equal contributions over 100 leave one leftover cent after
	// truncation; it must land on the lowest partner ID, every time.
	corrected := []CorrectedEntry{
		correctedNet("charlie", 1),
		correctedNet("alpha", 1),
		correctedNet("bravo", 1),
	}
	shrink := ShrinkageResult{TerminalVolume: 100}

	for i := 0; i < 10; i++ {
		allocs, err := Allocate(corrected, shrink, 2)
		require.NoError(t, err)
		require.Len(t, allocs, 3)

		require.Equal(t, "alpha", allocs[0].Partner)
		require.True(t, allocs[0].Volume.Equal(mustDecimal(t, "33.34")), "got %s", allocs[0].Volume)
		require.Equal(t, int64(1), allocs[0].RoundingUnits)

		require.True(t, allocs[1].Volume.Equal(mustDecimal(t, "33.33")))
		require.True(t, allocs[2].Volume.Equal(mustDecimal(t, "33.33")))
	}
}

func TestAllocateBitIdenticalAcrossCalls(t *testing.T) {
	// Enough partners with non-terminating nets that any map-order float
	// summation would drift in the last bits of the ratios.
	corrected := make([]CorrectedEntry, 0, 12)
	for i := 0; i < 12; i++ {
		partner := fmt.Sprintf("partner-%02d", i)
		corrected = append(corrected, correctedNet(partner, 1000.0/float64(i+3)))
	}
	shrink := ShrinkageResult{TerminalVolume: 2345.67}

	first, err := Allocate(corrected, shrink, 2)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Allocate(corrected, shrink, 2)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestAllocateOrderIndependent(t *testing.T) {
	shrink := ShrinkageResult{TerminalVolume: 950}
	forward, err := Allocate([]CorrectedEntry{
		correctedNet("alpha", 600),
		correctedNet("beta", 400),
	}, shrink, 2)
	require.NoError(t, err)

	reversed, err := Allocate([]CorrectedEntry{
		correctedNet("beta", 400),
		correctedNet("alpha", 600),
	}, shrink, 2)
	require.NoError(t, err)
	require.Equal(t, forward, reversed)
}

func TestAllocateOrderIndependentWithMultipleEntriesPerPartner(t *testing.T) {
	// 0.1 + 0.2 + 0.3 sums to different bit patterns depending on the
	// addition order, so a shuffled multiset exposes order-dependent
	// per-partner accumulation.
	shrink := ShrinkageResult{TerminalVolume: 0.9}
	forward, err := Allocate([]CorrectedEntry{
		correctedNetID("alpha", "e1", 0.1),
		correctedNetID("alpha", "e2", 0.2),
		correctedNetID("alpha", "e3", 0.3),
		correctedNetID("beta", "e4", 0.4),
	}, shrink, 4)
	require.NoError(t, err)

	shuffled, err := Allocate([]CorrectedEntry{
		correctedNetID("beta", "e4", 0.4),
		correctedNetID("alpha", "e3", 0.3),
		correctedNetID("alpha", "e1", 0.1),
		correctedNetID("alpha", "e2", 0.2),
	}, shrink, 4)
	require.NoError(t, err)
	require.Equal(t, forward, shuffled)
	require.Equal(t, forward[0].Ratio, shuffled[0].Ratio)
	require.Equal(t, forward[0].NetVolume, shuffled[0].NetVolume)
}

func TestAllocateMergesEntriesPerPartner(t *testing.T) {
	corrected := []CorrectedEntry{
		correctedNet("alpha", 300),
		correctedNet("alpha", 300),
		correctedNet("beta", 400),
	}
	allocs, err := Allocate(corrected, ShrinkageResult{TerminalVolume: 950}, 2)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, 600.0, allocs[0].NetVolume)
	require.True(t, allocs[0].Volume.Equal(mustDecimal(t, "570")))
}

func TestAllocateNoAllocatableVolume(t *testing.T) {
	_, err := Allocate(nil, ShrinkageResult{TerminalVolume: 950}, 2)
	require.ErrorIs(t, err, ErrNoAllocatableVolume)

	_, err = Allocate([]CorrectedEntry{correctedNet("alpha", 0)}, ShrinkageResult{TerminalVolume: 950}, 2)
	require.ErrorIs(t, err, ErrNoAllocatableVolume)
}

func TestAllocateHonorsPrecision(t *testing.T) {
	corrected := []CorrectedEntry{
		correctedNet("alpha", 1),
		correctedNet("beta", 2),
	}
	allocs, err := Allocate(corrected, ShrinkageResult{TerminalVolume: 10}, 3)
	require.NoError(t, err)

	// Beta's truncated fraction is the larger, so it receives the single
	// leftover thousandth.
	require.True(t, allocs[0].Volume.Equal(mustDecimal(t, "3.333")), "got %s", allocs[0].Volume)
	require.True(t, allocs[1].Volume.Equal(mustDecimal(t, "6.667")), "got %s", allocs[1].Volume)
}
