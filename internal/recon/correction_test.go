package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petroledger/petroledger/internal/production"
)

func testEntry(partner string, gross, bsw, tempF, api float64) production.ProductionEntry {
	return production.ProductionEntry{
		ID:           "entry-" + partner,
		Partner:      partner,
		GrossVolume:  gross,
		BSWPercent:   bsw,
		TemperatureF: tempF,
		APIGravity:   api,
		MeasuredAt:   time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestCorrectAppliesWaterCutAtStandardConditions(t *testing.T) {
	c := NewCorrector(DefaultCorrectionConfig())

	// At 60°F with matching gravities both correction factors are 1, so
	// only the BS&W deduction applies.
	ce, err := c.Correct(testEntry("p1", 1000, 2, 60, 35), 35)
	require.NoError(t, err)
	require.InDelta(t, 980.0, ce.NetVolume, 1e-9)
	require.Equal(t, 0.98, ce.WaterCutFactor)
	require.Equal(t, 1.0, ce.TempCorrection)
	require.Equal(t, 1.0, ce.APICorrection)
}

func TestCorrectWorkedExample(t *testing.T) {
	c := NewCorrector(DefaultCorrectionConfig())

	// 1000 bbl at 2% BS&W, 90°F, API 35 against a matching terminal
	// gravity. For API 35 the interpolated coefficients are α=0.00045 and
	// β=0.00000035, so VCF = 1 - 0.00045*30 - 0.00000035*900 = 0.986185.
	ce, err := c.Correct(testEntry("p1", 1000, 2, 90, 35), 35)
	require.NoError(t, err)
	require.Equal(t, 0.986185, ce.TempCorrection)
	require.Equal(t, 1.0, ce.APICorrection)
	require.InDelta(t, 1000*0.98*0.986185, ce.NetVolume, 1e-9)
	require.Greater(t, ce.NetVolume, 0.0)
	require.Less(t, ce.NetVolume, 1000.0)
}

func TestCorrectIsDeterministic(t *testing.T) {
	c := NewCorrector(DefaultCorrectionConfig())
	entry := testEntry("p1", 1523.77, 3.4, 92.5, 31.2)

	first, err := c.Correct(entry, 34.0)
	require.NoError(t, err)
	second, err := c.Correct(entry, 34.0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCorrectNetNeverExceedsGross(t *testing.T) {
	c := NewCorrector(DefaultCorrectionConfig())

	// Cold crude and a heavier terminal gravity push both factors above
	// one; the combined factor is capped so net stays at gross.
	ce, err := c.Correct(testEntry("p1", 1000, 0, 20, 45), 20)
	require.NoError(t, err)
	require.Greater(t, ce.TempCorrection, 1.0)
	require.Greater(t, ce.APICorrection, 1.0)
	require.Equal(t, 1000.0, ce.NetVolume)
}

func TestCorrectRejectsOutOfRangeInputs(t *testing.T) {
	c := NewCorrector(DefaultCorrectionConfig())

	cases := []struct {
		name  string
		entry production.ProductionEntry
	}{
		{"negative gross", testEntry("p1", -1, 0, 60, 35)},
		{"bsw above max", testEntry("p1", 100, 101, 60, 35)},
		{"temperature too high", testEntry("p1", 100, 1, 250, 35)},
		{"temperature too low", testEntry("p1", 100, 1, -80, 35)},
		{"api gravity too low", testEntry("p1", 100, 1, 60, 5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Correct(tc.entry, 35)
			require.ErrorIs(t, err, ErrOutOfRangeInput)
		})
	}

	// Terminal gravity is validated with the same envelope.
	_, err := c.Correct(testEntry("p1", 100, 1, 60, 35), 5)
	require.ErrorIs(t, err, ErrOutOfRangeInput)
}

func TestTemperatureCorrectionMonotonicAndBounded(t *testing.T) {
	warm := temperatureCorrection(80, 35)
	hot := temperatureCorrection(120, 35)
	require.Less(t, hot, warm)
	require.Less(t, warm, 1.0)

	// Extreme temperatures hit the lower constraint.
	require.Equal(t, minVCF, temperatureCorrection(200, 50))
	// Below-standard temperatures expand the factor but never past the cap.
	require.LessOrEqual(t, temperatureCorrection(-50, 50), maxVCF)
}

func TestAPICorrectionRatioOfSpecificGravities(t *testing.T) {
	// A heavier terminal standard than the observed crude expands the
	// entry; the inverse shrinks it.
	require.Greater(t, apiCorrection(40, 30), 1.0)
	require.Less(t, apiCorrection(30, 40), 1.0)
	require.Equal(t, 1.0, apiCorrection(35, 35))
}
