package domain

import "strings"

// RegimeType is the three-state market mood classification.
type RegimeType string

const (
	RegimeRiskOn  RegimeType = "RISK_ON"
	RegimeNeutral RegimeType = "NEUTRAL"
	RegimeRiskOff RegimeType = "RISK_OFF"
)

// Valid reports whether t is one of the known regime types.
func (t RegimeType) Valid() bool {
	switch t {
	case RegimeRiskOn, RegimeNeutral, RegimeRiskOff:
		return true
	}
	return false
}

// Label returns the human-readable regime name used in rationale text.
func (t RegimeType) Label() string {
	switch t {
	case RegimeRiskOn:
		return "Risk-On"
	case RegimeRiskOff:
		return "Risk-Off"
	case RegimeNeutral:
		return "Neutral"
	}
	return string(t)
}

// SectorPattern is the rotation pattern reported by the sector-rotation analyzer.
// Upstream may send values outside the known set; direction is parsed from the text.
type SectorPattern string

const (
	PatternRiskOnRotation    SectorPattern = "Risk-On Rotation"
	PatternRiskOffRotation   SectorPattern = "Risk-Off Rotation"
	PatternNeutralRotation   SectorPattern = "Neutral Rotation"
	PatternDefensiveRotation SectorPattern = "Defensive Rotation"
	PatternMixed             SectorPattern = "Mixed"
	PatternNoClearPattern    SectorPattern = "No Clear Pattern"
)

// Direction returns the regime the pattern points to, or "" when the pattern
// carries no directional label.
func (p SectorPattern) Direction() RegimeType {
	s := strings.ToLower(string(p))
	switch {
	case strings.Contains(s, "risk-on"), strings.Contains(s, "risk on"), strings.Contains(s, "risk_on"):
		return RegimeRiskOn
	case strings.Contains(s, "risk-off"), strings.Contains(s, "risk off"), strings.Contains(s, "risk_off"):
		return RegimeRiskOff
	case strings.Contains(s, "neutral"):
		return RegimeNeutral
	}
	return ""
}

// IsNoClearPattern reports whether the analyzer found no rotation at all.
func (p SectorPattern) IsNoClearPattern() bool {
	s := strings.ToLower(strings.TrimSpace(string(p)))
	return s == "no clear pattern" || s == "no_clear_pattern"
}

// Severity grades a detected conflict.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// RegimeSignal is the output of the regime classifier.
type RegimeSignal struct {
	Type       RegimeType `json:"type"`
	Confidence float64    `json:"confidence"` // 0-100
}

// SmartMoneySignal is the institutional/foreign flow score.
type SmartMoneySignal struct {
	Score          float64 `json:"score"` // 0-100
	CombinedSignal string  `json:"combinedSignal"`
	Confidence     float64 `json:"confidence"` // 0-100
	ForeignNetFlow float64 `json:"foreignNetFlow"`
}

// SectorSignal is the output of the sector-rotation analyzer.
type SectorSignal struct {
	Pattern       SectorPattern `json:"pattern"`
	Concentration float64       `json:"concentration"` // 0-100
	FocusSectors  []string      `json:"focusSectors"`
	AvoidSectors  []string      `json:"avoidSectors"`
}

// SignalBundle is the already-validated input to the verdict engine.
// The engine reads it and never mutates it.
type SignalBundle struct {
	Regime     RegimeSignal     `json:"regime"`
	SmartMoney SmartMoneySignal `json:"smartMoney"`
	Sector     SectorSignal     `json:"sector"`
}

// Conflict is a disagreement between signals reported by the conflict detector.
type Conflict struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Conflict types the engine treats specially.
const (
	ConflictHighPropTradingNoise = "High Prop Trading Noise"
)
