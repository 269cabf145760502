package verdict

import (
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Verdict bands on the normalized score.
const (
	proceedFloor = 65.0
	cautionFloor = 45.0
	neutralFloor = 30.0
)

func classifyVerdict(score float64) domain.Verdict {
	switch {
	case score >= proceedFloor:
		return domain.VerdictProceed
	case score >= cautionFloor:
		return domain.VerdictCaution
	case score >= neutralFloor:
		return domain.VerdictNeutral
	default:
		return domain.VerdictWait
	}
}

// primaryDriver picks the largest weighted contribution. Ties go to the
// earlier signal; a non-positive maximum means no driver.
func primaryDriver(s ScoreBreakdown) domain.PrimaryDriver {
	drivers := [4]domain.PrimaryDriver{
		domain.DriverMarketRegime,
		domain.DriverSmartMoney,
		domain.DriverForeignFlow,
		domain.DriverSectorStrength,
	}

	best := domain.DriverNone
	bestValue := 0.0
	for i, v := range s.contributions() {
		if v > bestValue {
			best = drivers[i]
			bestValue = v
		}
	}
	return best
}

func classifyConviction(bundle *domain.SignalBundle, rc domain.ResolutionContext, score float64) domain.Conviction {
	for _, sc := range rc.SpecialCases {
		lower := strings.ToLower(sc)
		if strings.Contains(lower, "noise") || strings.Contains(lower, "conflict") {
			return domain.ConvictionLow
		}
	}

	sm := bundle.SmartMoney.Score
	aligned := (bundle.Regime.Type == domain.RegimeRiskOn && sm > 60) ||
		(bundle.Regime.Type == domain.RegimeRiskOff && sm < 40)

	switch {
	case aligned && score > 70:
		return domain.ConvictionHigh
	case score > 50:
		return domain.ConvictionMedium
	default:
		return domain.ConvictionLow
	}
}

func classifySectorFocus(bundle *domain.SignalBundle, v domain.Verdict) domain.SectorFocus {
	switch v {
	case domain.VerdictProceed:
		if bundle.Regime.Type == domain.RegimeRiskOn && len(bundle.Sector.FocusSectors) > 0 {
			return domain.FocusOverweight
		}
	case domain.VerdictCaution:
		if len(bundle.Sector.AvoidSectors) > 0 {
			return domain.FocusUnderweight
		}
	case domain.VerdictNeutral, domain.VerdictWait:
	}
	return domain.FocusNeutral
}

// confidence blends input confidence with how far the score sits from 50.
// Non-finite inputs count as 0 and are returned in defaulted.
func confidence(bundle *domain.SignalBundle, score float64) (int, []string) {
	var defaulted []string
	finite := func(name string, v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			defaulted = append(defaulted, name)
			return 0
		}
		return v
	}

	avg := (finite(InputRegimeConfidence, bundle.Regime.Confidence) +
		finite(InputSmartMoneyConfidence, bundle.SmartMoney.Confidence) +
		finite(InputSectorConcentration, bundle.Sector.Concentration)) / 3

	extremity := math.Abs(score-50) / 50
	value := math.Round(avg * (0.8 + extremity*0.2))

	return int(clamp(value, 0, 100)), defaulted
}
