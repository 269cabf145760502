package rules

import (
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Builtin rule names, as recorded in ResolutionContext.AppliedRules.
const (
	RuleForeignDominance    = "Foreign Dominance"
	RuleSmartMoneyExtremes  = "Smart Money Extremes"
	RuleBankSectorDefensive = "Bank Sector Defensive"
	RuleSectorConfirmation  = "Sector Confirmation"
)

// Special-case tags attached by builtin rules.
const (
	TagForeignDominance        = "Foreign flow dominance detected"
	TagRegimeOverridesSmart    = "Regime high confidence overrides smart money"
	TagSmartMoneyExtreme       = "Smart money at extreme levels"
	TagBankSectorDefensive     = "Bank sector leadership is defensive, not bullish"
	TagSectorConcentrationHigh = "High sector concentration confirms trend"
)

// BuiltinPrefix starts every builtin rule ID; custom rules may not use it.
const BuiltinPrefix = "builtin-"

// BuiltinRules returns a fresh copy of the builtin resolution table,
// ordered by priority descending.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:        BuiltinPrefix + "foreign-dominance",
			Name:      RuleForeignDominance,
			Priority:  100,
			Source:    domain.RuleSourceBuiltin,
			Condition: foreignDominanceApplies,
			Resolve: func(in Input, w domain.WeightVector) Resolution {
				next := w.WithForeign(2.0).WithRegime(0.5)
				return Resolution{Weights: &next, SpecialCase: TagForeignDominance}
			},
		},
		{
			ID:        BuiltinPrefix + "smart-money-extremes",
			Name:      RuleSmartMoneyExtremes,
			Priority:  90,
			Source:    domain.RuleSourceBuiltin,
			Condition: smartMoneyExtremesApply,
			Resolve: func(in Input, w domain.WeightVector) Resolution {
				if in.Bundle.Regime.Confidence >= in.Thresholds.RegimeConfidenceOverride {
					return Resolution{SpecialCase: TagRegimeOverridesSmart}
				}
				next := w.WithSmartMoney(1.8).WithRegime(0.6)
				return Resolution{Weights: &next, SpecialCase: TagSmartMoneyExtreme}
			},
		},
		{
			ID:        BuiltinPrefix + "bank-sector-defensive",
			Name:      RuleBankSectorDefensive,
			Priority:  80,
			Source:    domain.RuleSourceBuiltin,
			Condition: bankSectorDefensiveApplies,
			Resolve: func(in Input, w domain.WeightVector) Resolution {
				return Resolution{SpecialCase: TagBankSectorDefensive}
			},
		},
		{
			ID:        BuiltinPrefix + "sector-confirmation",
			Name:      RuleSectorConfirmation,
			Priority:  70,
			Source:    domain.RuleSourceBuiltin,
			Condition: sectorConfirmationApplies,
			Resolve: func(in Input, w domain.WeightVector) Resolution {
				next := w.WithSector(1.2)
				return Resolution{Weights: &next, SpecialCase: TagSectorConcentrationHigh}
			},
		},
	}
}

func foreignDominanceApplies(in Input) bool {
	return math.Abs(in.Bundle.SmartMoney.ForeignNetFlow) > in.Thresholds.ForeignFlow &&
		in.Bundle.Regime.Confidence < in.Thresholds.RegimeConfidenceOverride
}

func smartMoneyExtremesApply(in Input) bool {
	score := in.Bundle.SmartMoney.Score
	return score > in.Thresholds.SmartMoneyHigh || score < in.Thresholds.SmartMoneyLow
}

func bankSectorDefensiveApplies(in Input) bool {
	if !hasFinancialLeadership(in.Bundle.Sector.FocusSectors) {
		return false
	}
	return in.Bundle.Regime.Type == domain.RegimeRiskOff ||
		in.Bundle.Regime.Confidence < in.Thresholds.BankDefensiveConfidence
}

func sectorConfirmationApplies(in Input) bool {
	return in.Bundle.Sector.Concentration > in.Thresholds.SectorConcentration
}

// hasFinancialLeadership reports whether any leading sector is a bank or financial sector.
func hasFinancialLeadership(sectors []string) bool {
	for _, s := range sectors {
		name := strings.ToLower(s)
		if strings.Contains(name, "bank") || strings.Contains(name, "financ") {
			return true
		}
	}
	return false
}
