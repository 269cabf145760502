package domain

import "time"

// Verdict is the final trading call.
type Verdict string

const (
	VerdictProceed Verdict = "PROCEED"
	VerdictCaution Verdict = "CAUTION"
	VerdictNeutral Verdict = "NEUTRAL"
	VerdictWait    Verdict = "WAIT"
)

// Valid reports whether v is one of the four verdict literals.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictProceed, VerdictCaution, VerdictNeutral, VerdictWait:
		return true
	}
	return false
}

// Label returns the verdict name used in rationale text.
func (v Verdict) Label() string {
	switch v {
	case VerdictProceed:
		return "Proceed"
	case VerdictCaution:
		return "Caution"
	case VerdictNeutral:
		return "Neutral"
	case VerdictWait:
		return "Wait"
	}
	return string(v)
}

// Conviction is the qualitative confidence in the directional call.
type Conviction string

const (
	ConvictionHigh   Conviction = "HIGH"
	ConvictionMedium Conviction = "MEDIUM"
	ConvictionLow    Conviction = "LOW"
)

// Valid reports whether c is a known conviction level.
func (c Conviction) Valid() bool {
	switch c {
	case ConvictionHigh, ConvictionMedium, ConvictionLow:
		return true
	}
	return false
}

// PrimaryDriver names the signal with the largest weighted contribution.
type PrimaryDriver string

const (
	DriverMarketRegime   PrimaryDriver = "MARKET_REGIME"
	DriverSmartMoney     PrimaryDriver = "SMART_MONEY"
	DriverForeignFlow    PrimaryDriver = "FOREIGN_FLOW"
	DriverSectorStrength PrimaryDriver = "SECTOR_STRENGTH"
	DriverNone           PrimaryDriver = "NONE"
)

// Valid reports whether d is a known driver.
func (d PrimaryDriver) Valid() bool {
	switch d {
	case DriverMarketRegime, DriverSmartMoney, DriverForeignFlow, DriverSectorStrength, DriverNone:
		return true
	}
	return false
}

// Label returns the driver name used in rationale text.
func (d PrimaryDriver) Label() string {
	switch d {
	case DriverMarketRegime:
		return "market regime"
	case DriverSmartMoney:
		return "smart money"
	case DriverForeignFlow:
		return "foreign flow"
	case DriverSectorStrength:
		return "sector strength"
	}
	return "none"
}

// SectorFocus is the sector allocation recommendation.
type SectorFocus string

const (
	FocusOverweight  SectorFocus = "OVERWEIGHT"
	FocusUnderweight SectorFocus = "UNDERWEIGHT"
	FocusNeutral     SectorFocus = "NEUTRAL"
)

// Valid reports whether f is a known sector focus.
func (f SectorFocus) Valid() bool {
	switch f {
	case FocusOverweight, FocusUnderweight, FocusNeutral:
		return true
	}
	return false
}

// WeightVector holds the per-signal weights used by the score aggregator.
// It is a value type: the With* methods return a modified copy.
type WeightVector struct {
	Regime     float64 `json:"regime" yaml:"regime" toml:"regime"`
	SmartMoney float64 `json:"smartMoney" yaml:"smart_money" toml:"smart_money"`
	Foreign    float64 `json:"foreign" yaml:"foreign" toml:"foreign"`
	Sector     float64 `json:"sector" yaml:"sector" toml:"sector"`
}

// DefaultWeights returns a fresh vector with every weight at 1.0.
func DefaultWeights() WeightVector {
	return WeightVector{Regime: 1.0, SmartMoney: 1.0, Foreign: 1.0, Sector: 1.0}
}

// WithRegime returns a copy of w with the regime weight replaced.
func (w WeightVector) WithRegime(v float64) WeightVector { w.Regime = v; return w }

// WithSmartMoney returns a copy of w with the smart money weight replaced.
func (w WeightVector) WithSmartMoney(v float64) WeightVector { w.SmartMoney = v; return w }

// WithForeign returns a copy of w with the foreign flow weight replaced.
func (w WeightVector) WithForeign(v float64) WeightVector { w.Foreign = v; return w }

// WithSector returns a copy of w with the sector weight replaced.
func (w WeightVector) WithSector(v float64) WeightVector { w.Sector = v; return w }

// Thresholds are the named constants used by rule conditions and sub-scorers.
type Thresholds struct {
	ForeignFlow              float64 `json:"foreignFlow" yaml:"foreign_flow" toml:"foreign_flow"`
	SmartMoneyHigh           float64 `json:"smartMoneyHigh" yaml:"smart_money_high" toml:"smart_money_high"`
	SmartMoneyLow            float64 `json:"smartMoneyLow" yaml:"smart_money_low" toml:"smart_money_low"`
	RegimeConfidenceOverride float64 `json:"regimeConfidenceOverride" yaml:"regime_confidence_override" toml:"regime_confidence_override"`
	BankDefensiveConfidence  float64 `json:"bankDefensiveConfidence" yaml:"bank_defensive_confidence" toml:"bank_defensive_confidence"`
	SectorConcentration      float64 `json:"sectorConcentration" yaml:"sector_concentration" toml:"sector_concentration"`
}

// DefaultThresholds returns the production threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ForeignFlow:              500,
		SmartMoneyHigh:           75,
		SmartMoneyLow:            25,
		RegimeConfidenceOverride: 70,
		BankDefensiveConfidence:  60,
		SectorConcentration:      60,
	}
}

// ResolutionContext is the trace of which resolution rule fired and why.
type ResolutionContext struct {
	AppliedRules []string     `json:"appliedRules"`
	Weights      WeightVector `json:"weights"`
	SpecialCases []string     `json:"specialCases"`
}

// SignalReading is a snapshot of one input signal for audit output.
type SignalReading struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ConflictingSignals captures every input signal as it was seen by the engine.
type ConflictingSignals struct {
	Regime      SignalReading `json:"regime"`
	SmartMoney  SignalReading `json:"smartMoney"`
	ForeignFlow SignalReading `json:"foreignFlow"`
	Sector      SignalReading `json:"sector"`
}

// Diagnostics tells callers whether missing or invalid numbers were treated as zero.
type Diagnostics struct {
	DefaultsApplied bool     `json:"defaultsApplied"`
	DefaultedInputs []string `json:"defaultedInputs,omitempty"`
}

// VerdictResult is the explainable output of one engine invocation.
type VerdictResult struct {
	Verdict            Verdict            `json:"verdict"`
	Conviction         Conviction         `json:"conviction"`
	PrimaryDriver      PrimaryDriver      `json:"primaryDriver"`
	SectorFocus        SectorFocus        `json:"sectorFocus"`
	Confidence         int                `json:"confidence"`
	Reasoning          []string           `json:"reasoning"`
	Explanation        string             `json:"explanation"`
	ActionableTakeaway string             `json:"actionableTakeaway"`
	KeyConflictAlert   string             `json:"keyConflictAlert,omitempty"`
	ConflictingSignals ConflictingSignals `json:"conflictingSignals"`
	Diagnostics        Diagnostics        `json:"diagnostics"`
	Timestamp          time.Time          `json:"timestamp"`
}
