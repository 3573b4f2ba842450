package recon

import (
	"fmt"
	"math"

	"github.com/petroledger/petroledger/internal/production"
)

const (
	// standardTempF is the petroleum industry reference temperature.
	standardTempF = 60.0

	minVCF = 0.95
	maxVCF = 1.05

	minAPICorrection = 0.90
	maxAPICorrection = 1.15
)

// CorrectionConfig bounds the validity envelope for correction inputs.
// Values outside the envelope fail the entry; they are never clamped.
type CorrectionConfig struct {
	BSWMinPercent float64
	BSWMaxPercent float64
	TempMinDegF   float64
	TempMaxDegF   float64
	APIGravityMin float64
	APIGravityMax float64
}

// DefaultCorrectionConfig returns the standard validity envelope.
func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		BSWMinPercent: 0,
		BSWMaxPercent: 100,
		TempMinDegF:   -50,
		TempMaxDegF:   200,
		APIGravityMin: 10,
		APIGravityMax: 100,
	}
}

// Corrector applies BS&W, temperature and API gravity corrections.
// Pure: identical inputs always yield bit-identical output.
type Corrector struct {
	cfg CorrectionConfig
}

// NewCorrector constructs a corrector with the given envelope.
func NewCorrector(cfg CorrectionConfig) *Corrector {
	return &Corrector{cfg: cfg}
}

// Correct derives the net volume for one production entry against the
// terminal's standard API gravity.
func (c *Corrector) Correct(entry production.ProductionEntry, terminalAPI float64) (CorrectedEntry, error) {
	if err := c.validate(entry, terminalAPI); err != nil {
		return CorrectedEntry{}, err
	}

	waterCut := 1 - entry.BSWPercent/100
	vcf := temperatureCorrection(entry.TemperatureF, entry.APIGravity)
	apiCorr := apiCorrection(entry.APIGravity, terminalAPI)

	combined := waterCut * vcf * apiCorr
	// Gains from correction factors above unity belong to the shrinkage
	// stage; a corrected entry never exceeds its gross volume.
	if combined > 1 {
		combined = 1
	}
	net := entry.GrossVolume * combined
	if net < 0 {
		net = 0
	}

	return CorrectedEntry{
		Entry:          entry,
		NetVolume:      net,
		WaterCutFactor: round6(waterCut),
		TempCorrection: vcf,
		APICorrection:  apiCorr,
	}, nil
}

func (c *Corrector) validate(entry production.ProductionEntry, terminalAPI float64) error {
	if entry.GrossVolume < 0 {
		return fmt.Errorf("%w: gross volume %.2f is negative", ErrOutOfRangeInput, entry.GrossVolume)
	}
	if entry.BSWPercent < c.cfg.BSWMinPercent || entry.BSWPercent > c.cfg.BSWMaxPercent {
		return fmt.Errorf("%w: bsw %.2f%% outside [%.2f, %.2f]", ErrOutOfRangeInput, entry.BSWPercent, c.cfg.BSWMinPercent, c.cfg.BSWMaxPercent)
	}
	if entry.TemperatureF < c.cfg.TempMinDegF || entry.TemperatureF > c.cfg.TempMaxDegF {
		return fmt.Errorf("%w: temperature %.1f°F outside [%.1f, %.1f]", ErrOutOfRangeInput, entry.TemperatureF, c.cfg.TempMinDegF, c.cfg.TempMaxDegF)
	}
	if entry.APIGravity < c.cfg.APIGravityMin || entry.APIGravity > c.cfg.APIGravityMax {
		return fmt.Errorf("%w: api gravity %.1f outside [%.1f, %.1f]", ErrOutOfRangeInput, entry.APIGravity, c.cfg.APIGravityMin, c.cfg.APIGravityMax)
	}
	if terminalAPI < c.cfg.APIGravityMin || terminalAPI > c.cfg.APIGravityMax {
		return fmt.Errorf("%w: terminal api gravity %.1f outside [%.1f, %.1f]", ErrOutOfRangeInput, terminalAPI, c.cfg.APIGravityMin, c.cfg.APIGravityMax)
	}
	return nil
}

// temperatureCorrection computes the volume correction factor
// VCF = 1 - α(T - Ts) - β(T - Ts)² with α/β interpolated from the API
// gravity band, constrained to [0.95, 1.05].
func temperatureCorrection(tempF, apiGravity float64) float64 {
	alpha, beta := vcfCoefficients(apiGravity)
	dt := tempF - standardTempF
	vcf := 1 - alpha*dt - beta*dt*dt
	return round6(clamp(vcf, minVCF, maxVCF))
}

// vcfCoefficients interpolates expansion coefficients by crude class:
// heavy (API ≤ 10), medium (≤ 25), light (≤ 45), condensate (> 45).
func vcfCoefficients(apiGravity float64) (alpha, beta float64) {
	switch {
	case apiGravity <= 10:
		return 0.0003, 0.0000001
	case apiGravity <= 25:
		f := (apiGravity - 10) / 15
		return 0.0003 + f*0.0001, 0.0000001 + f*0.0000001
	case apiGravity <= 45:
		f := (apiGravity - 25) / 20
		return 0.0004 + f*0.0001, 0.0000002 + f*0.0000003
	default:
		return 0.0005, 0.0000005
	}
}

// apiCorrection adjusts for the spread between observed and terminal
// gravity via specific gravities, SG = 141.5/(API + 131.5), constrained
// to [0.90, 1.15].
func apiCorrection(observedAPI, terminalAPI float64) float64 {
	observedSG := 141.5 / (observedAPI + 131.5)
	standardSG := 141.5 / (terminalAPI + 131.5)
	return round6(clamp(standardSG/observedSG, minAPICorrection, maxAPICorrection))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
