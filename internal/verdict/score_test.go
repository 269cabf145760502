package verdict

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestRegimeScore(t *testing.T) {
	tests := []struct {
		regime domain.RegimeType
		conf   float64
		want   float64
	}{
		{domain.RegimeRiskOn, 100, 75},
		{domain.RegimeRiskOn, 50, 37.5},
		{domain.RegimeNeutral, 100, 50},
		{domain.RegimeRiskOff, 100, 25},
		{domain.RegimeRiskOff, 0, 0},
	}

	for _, tt := range tests {
		got := regimeScore(domain.RegimeSignal{Type: tt.regime, Confidence: tt.conf})
		if got != tt.want {
			t.Errorf("%s at %.0f: expected %.2f, got %.2f", tt.regime, tt.conf, tt.want, got)
		}
	}
}

func TestForeignScore(t *testing.T) {
	tests := []struct {
		flow float64
		want float64
	}{
		{0, 50},
		{500, 50},
		{-500, 50},
		{750, 75},
		{-750, 25},
		{1000, 100},
		{-1000, 0},
		{5000, 100},
		{-5000, 0},
	}

	for _, tt := range tests {
		if got := foreignScore(tt.flow, 500); got != tt.want {
			t.Errorf("flow %.0f: expected %.2f, got %.2f", tt.flow, tt.want, got)
		}
	}

	// No step at the band edge.
	for _, edge := range []float64{500, -500} {
		step := math.Copysign(1, edge)
		if d := math.Abs(foreignScore(edge+step, 500) - foreignScore(edge, 500)); d > 0.1 {
			t.Errorf("flow %.0f: expected continuous score at band edge, jumped %.2f", edge, d)
		}
	}

	if got := foreignScore(math.NaN(), 500); !math.IsNaN(got) {
		t.Errorf("expected NaN to propagate for the caller to default, got %.2f", got)
	}
}

func TestSectorScore(t *testing.T) {
	tests := []struct {
		name    string
		pattern domain.SectorPattern
		regime  domain.RegimeType
		conc    float64
		want    float64
	}{
		{"aligned risk on", domain.PatternRiskOnRotation, domain.RegimeRiskOn, 50, 80},
		{"aligned risk off lowercase", "risk-off rotation", domain.RegimeRiskOff, 100, 90},
		{"aligned neutral", domain.PatternNeutralRotation, domain.RegimeNeutral, 0, 70},
		{"misaligned", domain.PatternRiskOnRotation, domain.RegimeRiskOff, 90, 50},
		{"no clear pattern", domain.PatternNoClearPattern, domain.RegimeRiskOn, 90, 40},
		{"defensive", domain.PatternDefensiveRotation, domain.RegimeRiskOff, 90, 50},
		{"mixed", domain.PatternMixed, domain.RegimeNeutral, 90, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sectorScore(domain.SectorSignal{Pattern: tt.pattern, Concentration: tt.conc}, tt.regime)
			if got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestScoreDefaultWeights(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOn, Confidence: 100},
		SmartMoney: domain.SmartMoneySignal{Score: 90, ForeignNetFlow: 0},
		Sector:     domain.SectorSignal{Pattern: domain.PatternRiskOnRotation, Concentration: 70},
	}

	s := Score(b, domain.DefaultWeights(), domain.DefaultThresholds())

	// (75 + 90 + 50 + 84) / 400 * 100
	if math.Abs(s.Normalized-74.75) > 1e-9 {
		t.Errorf("expected 74.75, got %.4f", s.Normalized)
	}
	if len(s.Reasoning) != 5 {
		t.Fatalf("expected 5 reasoning lines, got %d", len(s.Reasoning))
	}
	if s.Reasoning[4] != "Final score: 74.8/100 (299.0 of 400.0 weighted points)" {
		t.Errorf("unexpected final line: %q", s.Reasoning[4])
	}
	if len(s.Defaulted) != 0 {
		t.Errorf("expected no defaulted inputs, got %v", s.Defaulted)
	}
}

func TestScoreWeighted(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeNeutral, Confidence: 100},
		SmartMoney: domain.SmartMoneySignal{Score: 50, ForeignNetFlow: 1000},
		Sector:     domain.SectorSignal{Pattern: domain.PatternMixed},
	}
	w := domain.DefaultWeights().WithForeign(2.0).WithRegime(0.5)

	s := Score(b, w, domain.DefaultThresholds())

	// (50*0.5 + 50 + 100*2 + 50) / (100*4.5) * 100
	want := 325.0 / 450.0 * 100
	if math.Abs(s.Normalized-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, s.Normalized)
	}
}

func TestScoreZeroWeights(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOn, Confidence: 100},
		SmartMoney: domain.SmartMoneySignal{Score: 90},
	}

	s := Score(b, domain.WeightVector{}, domain.DefaultThresholds())
	if s.Normalized != 50 {
		t.Errorf("expected 50 with zero weights, got %.2f", s.Normalized)
	}
}

func TestScoreDefaultsNonFinite(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeRiskOn, Confidence: math.NaN()},
		SmartMoney: domain.SmartMoneySignal{Score: math.Inf(1), ForeignNetFlow: 0},
		Sector:     domain.SectorSignal{Pattern: domain.PatternMixed},
	}

	s := Score(b, domain.DefaultWeights(), domain.DefaultThresholds())

	if s.Regime != 0 || s.SmartMoney != 0 {
		t.Errorf("expected defaulted sub-scores to be 0, got regime %.2f smart money %.2f", s.Regime, s.SmartMoney)
	}
	if len(s.Defaulted) != 2 || s.Defaulted[0] != InputRegimeScore || s.Defaulted[1] != InputSmartMoneyScore {
		t.Errorf("expected regime and smart money defaulted, got %v", s.Defaulted)
	}
	// (0 + 0 + 50 + 50) / 400
	if s.Normalized != 25 {
		t.Errorf("expected 25, got %.2f", s.Normalized)
	}
	if math.IsNaN(s.Normalized) {
		t.Error("normalized score must never be NaN")
	}
}

func TestScoreZeroesMissingForeignFlow(t *testing.T) {
	b := &domain.SignalBundle{
		Regime:     domain.RegimeSignal{Type: domain.RegimeNeutral, Confidence: 100},
		SmartMoney: domain.SmartMoneySignal{Score: 50, ForeignNetFlow: math.NaN()},
		Sector:     domain.SectorSignal{Pattern: domain.PatternMixed},
	}

	s := Score(b, domain.DefaultWeights(), domain.DefaultThresholds())

	if s.Foreign != 0 {
		t.Errorf("expected missing flow to zero the foreign sub-score, got %.2f", s.Foreign)
	}
	if len(s.Defaulted) != 1 || s.Defaulted[0] != InputForeignScore {
		t.Errorf("expected foreign score defaulted, got %v", s.Defaulted)
	}
	// (50 + 50 + 0 + 50) / 400
	if s.Normalized != 37.5 {
		t.Errorf("expected 37.5, got %.2f", s.Normalized)
	}
}
