package verdict

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Names recorded in Diagnostics.DefaultedInputs.
const (
	InputRegimeScore          = "regimeScore"
	InputSmartMoneyScore      = "smartMoneyScore"
	InputForeignScore         = "foreignScore"
	InputSectorScore          = "sectorScore"
	InputRegimeConfidence     = "regime.confidence"
	InputSmartMoneyConfidence = "smartMoney.confidence"
	InputSectorConcentration  = "sector.concentration"
)

// ScoreBreakdown holds the sub-scores and the weighted total.
type ScoreBreakdown struct {
	Regime     float64
	SmartMoney float64
	Foreign    float64
	Sector     float64

	Weights    domain.WeightVector
	Normalized float64
	Reasoning  []string

	// Defaulted lists sub-scores that were NaN or infinite and counted as 0.
	Defaulted []string
}

// contributions returns the weighted contribution of each signal in driver order.
func (s ScoreBreakdown) contributions() [4]float64 {
	return [4]float64{
		s.Regime * s.Weights.Regime,
		s.SmartMoney * s.Weights.SmartMoney,
		s.Foreign * s.Weights.Foreign,
		s.Sector * s.Weights.Sector,
	}
}

// Score computes the sub-scores and normalized 0-100 score for a bundle
// under the given weights.
func Score(bundle *domain.SignalBundle, w domain.WeightVector, th domain.Thresholds) ScoreBreakdown {
	s := ScoreBreakdown{Weights: w}

	s.Regime = s.finite(InputRegimeScore, regimeScore(bundle.Regime))
	s.SmartMoney = s.finite(InputSmartMoneyScore, bundle.SmartMoney.Score)
	s.Foreign = s.finite(InputForeignScore, foreignScore(bundle.SmartMoney.ForeignNetFlow, th.ForeignFlow))
	s.Sector = s.finite(InputSectorScore, sectorScore(bundle.Sector, bundle.Regime.Type))

	total := s.Regime*w.Regime + s.SmartMoney*w.SmartMoney + s.Foreign*w.Foreign + s.Sector*w.Sector
	maxPossible := 100 * (w.Regime + w.SmartMoney + w.Foreign + w.Sector)

	s.Normalized = 50
	if maxPossible != 0 {
		s.Normalized = total / maxPossible * 100
	}

	s.Reasoning = []string{
		s.line(InputRegimeScore, fmt.Sprintf("Regime %s (%.1f%% confidence)", bundle.Regime.Type.Label(), bundle.Regime.Confidence), s.Regime, w.Regime),
		s.line(InputSmartMoneyScore, smartMoneyLabel(bundle.SmartMoney), s.SmartMoney, w.SmartMoney),
		s.line(InputForeignScore, fmt.Sprintf("Foreign net flow %.1f", bundle.SmartMoney.ForeignNetFlow), s.Foreign, w.Foreign),
		s.line(InputSectorScore, fmt.Sprintf("Sector %s (%.1f%% concentration)", patternLabel(bundle.Sector.Pattern), bundle.Sector.Concentration), s.Sector, w.Sector),
		fmt.Sprintf("Final score: %.1f/100 (%.1f of %.1f weighted points)", s.Normalized, total, maxPossible),
	}

	return s
}

func (s *ScoreBreakdown) finite(name string, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		s.Defaulted = append(s.Defaulted, name)
		return 0
	}
	return v
}

func (s *ScoreBreakdown) line(name, label string, score, weight float64) string {
	line := fmt.Sprintf("%s: score %.1f x weight %.1f = %.1f", label, score, weight, score*weight)
	for _, d := range s.Defaulted {
		if d == name {
			return line + " (missing input counted as 0)"
		}
	}
	return line
}

func regimeScore(r domain.RegimeSignal) float64 {
	var base float64
	switch r.Type {
	case domain.RegimeRiskOn:
		base = 75
	case domain.RegimeRiskOff:
		base = 25
	default:
		base = 50
	}
	return base * (r.Confidence / 100)
}

// foreignScore is neutral inside the threshold band and ramps from 50 at the
// band edge to 100 (or 0) one further threshold out.
func foreignScore(flow, threshold float64) float64 {
	if math.Abs(flow) <= threshold {
		return 50
	}
	if threshold <= 0 {
		if flow > 0 {
			return 100
		}
		return 0
	}
	if flow > 0 {
		return clamp(50+(flow-threshold)/threshold*50, 0, 100)
	}
	return clamp(50+(flow+threshold)/threshold*50, 0, 100)
}

func sectorScore(sector domain.SectorSignal, regime domain.RegimeType) float64 {
	if sector.Pattern.IsNoClearPattern() {
		return 40
	}
	if dir := sector.Pattern.Direction(); dir != "" && dir == regime {
		return 70 + sector.Concentration/100*20
	}
	return 50
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}

func smartMoneyLabel(sm domain.SmartMoneySignal) string {
	if sm.CombinedSignal == "" {
		return fmt.Sprintf("Smart money %.1f", sm.Score)
	}
	return fmt.Sprintf("Smart money %.1f (%s)", sm.Score, sm.CombinedSignal)
}

func patternLabel(p domain.SectorPattern) string {
	if p == "" {
		return "no pattern"
	}
	return string(p)
}
