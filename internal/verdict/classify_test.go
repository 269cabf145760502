package verdict

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestClassifyVerdict(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Verdict
	}{
		{100, domain.VerdictProceed},
		{65, domain.VerdictProceed},
		{64.99, domain.VerdictCaution},
		{45, domain.VerdictCaution},
		{44.99, domain.VerdictNeutral},
		{30, domain.VerdictNeutral},
		{29.99, domain.VerdictWait},
		{0, domain.VerdictWait},
	}

	for _, tt := range tests {
		if got := classifyVerdict(tt.score); got != tt.want {
			t.Errorf("score %.2f: expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestPrimaryDriver(t *testing.T) {
	t.Run("largest weighted contribution", func(t *testing.T) {
		s := ScoreBreakdown{Regime: 80, SmartMoney: 60, Foreign: 50, Sector: 50, Weights: domain.DefaultWeights().WithForeign(2.0)}
		if got := primaryDriver(s); got != domain.DriverForeignFlow {
			t.Errorf("expected FOREIGN_FLOW, got %s", got)
		}
	})

	t.Run("tie goes to earlier signal", func(t *testing.T) {
		s := ScoreBreakdown{Regime: 60, SmartMoney: 60, Foreign: 60, Sector: 60, Weights: domain.DefaultWeights()}
		if got := primaryDriver(s); got != domain.DriverMarketRegime {
			t.Errorf("expected MARKET_REGIME, got %s", got)
		}
	})

	t.Run("sector wins last", func(t *testing.T) {
		s := ScoreBreakdown{Regime: 10, SmartMoney: 20, Foreign: 30, Sector: 90, Weights: domain.DefaultWeights()}
		if got := primaryDriver(s); got != domain.DriverSectorStrength {
			t.Errorf("expected SECTOR_STRENGTH, got %s", got)
		}
	})

	t.Run("nothing positive", func(t *testing.T) {
		s := ScoreBreakdown{Weights: domain.DefaultWeights()}
		if got := primaryDriver(s); got != domain.DriverNone {
			t.Errorf("expected NONE, got %s", got)
		}
	})
}

func TestClassifyConviction(t *testing.T) {
	riskOn := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOn, Confidence: 90},
		SmartMoney: domain.SmartMoneySignal{Score: 80},
	}
	riskOff := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOff, Confidence: 90},
		SmartMoney: domain.SmartMoneySignal{Score: 20},
	}
	empty := domain.ResolutionContext{}

	tests := []struct {
		name   string
		bundle *domain.SignalBundle
		rc     domain.ResolutionContext
		score  float64
		want   domain.Conviction
	}{
		{"aligned risk on", riskOn, empty, 75, domain.ConvictionHigh},
		{"aligned risk off", riskOff, empty, 71, domain.ConvictionHigh},
		{"aligned but score too low", riskOn, empty, 70, domain.ConvictionMedium},
		{"medium", riskOff, empty, 55, domain.ConvictionMedium},
		{"low", riskOn, empty, 50, domain.ConvictionLow},
		{"noise tag", riskOn, domain.ResolutionContext{SpecialCases: []string{"Prop NOISE elevated"}}, 90, domain.ConvictionLow},
		{"conflict tag", riskOn, domain.ResolutionContext{SpecialCases: []string{"Signal conflict"}}, 90, domain.ConvictionLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyConviction(tt.bundle, tt.rc, tt.score); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifySectorFocus(t *testing.T) {
	b := &domain.SignalBundle{
		Regime: domain.RegimeSignal{Type: domain.RegimeRiskOn},
		Sector: domain.SectorSignal{FocusSectors: []string{"Technology"}, AvoidSectors: []string{"Utilities"}},
	}

	tests := []struct {
		verdict domain.Verdict
		want    domain.SectorFocus
	}{
		{domain.VerdictProceed, domain.FocusOverweight},
		{domain.VerdictCaution, domain.FocusUnderweight},
		{domain.VerdictNeutral, domain.FocusNeutral},
		{domain.VerdictWait, domain.FocusNeutral},
	}
	for _, tt := range tests {
		if got := classifySectorFocus(b, tt.verdict); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.verdict, tt.want, got)
		}
	}

	offRegime := *b
	offRegime.Regime.Type = domain.RegimeNeutral
	if got := classifySectorFocus(&offRegime, domain.VerdictProceed); got != domain.FocusNeutral {
		t.Errorf("expected NEUTRAL outside risk-on, got %s", got)
	}

	noAvoid := *b
	noAvoid.Sector.AvoidSectors = nil
	if got := classifySectorFocus(&noAvoid, domain.VerdictCaution); got != domain.FocusNeutral {
		t.Errorf("expected NEUTRAL without avoid sectors, got %s", got)
	}
}

func TestConfidence(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Confidence: 90},
		SmartMoney: domain.SmartMoneySignal{Confidence: 60},
		Sector:     domain.SectorSignal{Concentration: 30},
	}

	// avg 60; at score 50 factor is 0.8
	if got, _ := confidence(b, 50); got != 48 {
		t.Errorf("expected 48, got %d", got)
	}
	// at score 100 factor is 1.0
	if got, _ := confidence(b, 100); got != 60 {
		t.Errorf("expected 60, got %d", got)
	}
	// at score 0 factor is 1.0
	if got, _ := confidence(b, 0); got != 60 {
		t.Errorf("expected 60, got %d", got)
	}

	high := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Confidence: 500},
		SmartMoney: domain.SmartMoneySignal{Confidence: 500},
		Sector:     domain.SectorSignal{Concentration: 500},
	}
	if got, _ := confidence(high, 100); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}

	negative := &domain.SignalBundle{Regime: domain.RegimeSignal{Confidence: -300}}
	if got, _ := confidence(negative, 50); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}

	missing := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Confidence: math.NaN()},
		SmartMoney: domain.SmartMoneySignal{Confidence: 60},
		Sector:     domain.SectorSignal{Concentration: math.Inf(-1)},
	}
	got, defaulted := confidence(missing, 100)
	if got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if len(defaulted) != 2 || defaulted[0] != InputRegimeConfidence || defaulted[1] != InputSectorConcentration {
		t.Errorf("expected regime confidence and sector concentration defaulted, got %v", defaulted)
	}
}
