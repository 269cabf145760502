package verdict

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// buildResult classifies a scored bundle and composes its rationale.
func buildResult(bundle *domain.SignalBundle, s ScoreBreakdown, conflicts []domain.Conflict, rc domain.ResolutionContext, th domain.Thresholds) domain.VerdictResult {
	v := classifyVerdict(s.Normalized)
	driver := primaryDriver(s)
	focus := classifySectorFocus(bundle, v)
	conf, confDefaulted := confidence(bundle, s.Normalized)

	defaulted := append(append([]string{}, s.Defaulted...), confDefaulted...)

	alert := conflictAlert(conflicts)

	return domain.VerdictResult{
		Verdict:            v,
		Conviction:         classifyConviction(bundle, rc, s.Normalized),
		PrimaryDriver:      driver,
		SectorFocus:        focus,
		Confidence:         conf,
		Reasoning:          s.Reasoning,
		Explanation:        explanation(bundle, v, driver, alert),
		ActionableTakeaway: takeaway(bundle, v, focus),
		KeyConflictAlert:   alert,
		ConflictingSignals: snapshotSignals(bundle, th),
		Diagnostics: domain.Diagnostics{
			DefaultsApplied: len(defaulted) > 0,
			DefaultedInputs: defaulted,
		},
	}
}

// conflictAlert joins all conflict descriptions.
func conflictAlert(conflicts []domain.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		if d := strings.TrimSpace(c.Description); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, "; ")
}

func explanation(bundle *domain.SignalBundle, v domain.Verdict, driver domain.PrimaryDriver, alert string) string {
	sentences := make([]string, 0, 5)

	if driver == domain.DriverNone {
		sentences = append(sentences, fmt.Sprintf("No single signal drives this %s call.", v.Label()))
	} else {
		label := driver.Label()
		sentences = append(sentences, fmt.Sprintf("%s%s is the primary driver of this %s call.",
			strings.ToUpper(label[:1]), label[1:], v.Label()))
	}

	sentences = append(sentences, fmt.Sprintf("Market regime is %s with %.0f%% confidence.",
		bundle.Regime.Type.Label(), finiteOrZero(bundle.Regime.Confidence)))

	if bundle.SmartMoney.CombinedSignal != "" {
		sentences = append(sentences, fmt.Sprintf("Smart money scores %.0f with a %s combined signal.",
			finiteOrZero(bundle.SmartMoney.Score), bundle.SmartMoney.CombinedSignal))
	} else {
		sentences = append(sentences, fmt.Sprintf("Smart money scores %.0f.", finiteOrZero(bundle.SmartMoney.Score)))
	}

	sentences = append(sentences, fmt.Sprintf("Sector rotation shows %s.", patternLabel(bundle.Sector.Pattern)))

	if alert != "" {
		sentences = append(sentences, fmt.Sprintf("Conflict alert: %s.", strings.TrimRight(alert, ".")))
	}

	return strings.Join(sentences, " ")
}

func takeaway(bundle *domain.SignalBundle, v domain.Verdict, focus domain.SectorFocus) string {
	switch v {
	case domain.VerdictProceed:
		if focus == domain.FocusOverweight {
			return fmt.Sprintf("Accumulate positions, favoring %s.", strings.Join(firstN(bundle.Sector.FocusSectors, 3), ", "))
		}
		return "Conditions support adding exposure; build positions selectively."
	case domain.VerdictCaution:
		if focus == domain.FocusUnderweight {
			return fmt.Sprintf("Reduce exposure to %s and tighten risk controls.", strings.Join(firstN(bundle.Sector.AvoidSectors, 2), ", "))
		}
		return "Reduce position sizes and tighten stops until signals align."
	case domain.VerdictNeutral:
		return "Hold current positions; there is no clear edge for new entries."
	default:
		return "Wait on the sidelines until signals improve before committing capital."
	}
}

// snapshotSignals records each input signal with its confidence or strength.
func snapshotSignals(bundle *domain.SignalBundle, th domain.Thresholds) domain.ConflictingSignals {
	sm := bundle.SmartMoney

	smValue := fmt.Sprintf("%.1f", finiteOrZero(sm.Score))
	if sm.CombinedSignal != "" {
		smValue = fmt.Sprintf("%s (%s)", smValue, sm.CombinedSignal)
	}

	flow := finiteOrZero(sm.ForeignNetFlow)
	strength := 0.0
	if th.ForeignFlow > 0 {
		strength = math.Min(100, math.Abs(flow)/th.ForeignFlow*50)
	}

	return domain.ConflictingSignals{
		Regime: domain.SignalReading{
			Value:      string(bundle.Regime.Type),
			Confidence: finiteOrZero(bundle.Regime.Confidence),
		},
		SmartMoney: domain.SignalReading{
			Value:      smValue,
			Confidence: finiteOrZero(sm.Confidence),
		},
		ForeignFlow: domain.SignalReading{
			Value:      fmt.Sprintf("%+.1f", flow),
			Confidence: strength,
		},
		Sector: domain.SignalReading{
			Value:      patternLabel(bundle.Sector.Pattern),
			Confidence: finiteOrZero(bundle.Sector.Concentration),
		},
	}
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
