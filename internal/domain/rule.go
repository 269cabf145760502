package domain

// RuleConfig defines an operator-configured resolution rule.
// Custom rules join the builtin table and follow the same first-match policy.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Priority orders the rule against the builtin table (higher first).
	Priority int `json:"priority"`

	// CEL expression over the signal bundle; must return bool.
	Expression string `json:"expression"`

	// Weights overridden when the rule fires. Unset fields keep the current weight.
	Weights WeightOverride `json:"weights"`

	// SpecialCase is the tag recorded in the resolution context.
	SpecialCase string `json:"specialCase"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// WeightOverride is a partial weight vector.
type WeightOverride struct {
	Regime     *float64 `json:"regime,omitempty"`
	SmartMoney *float64 `json:"smartMoney,omitempty"`
	Foreign    *float64 `json:"foreign,omitempty"`
	Sector     *float64 `json:"sector,omitempty"`
}

// IsEmpty reports whether the override changes nothing.
func (o WeightOverride) IsEmpty() bool {
	return o.Regime == nil && o.SmartMoney == nil && o.Foreign == nil && o.Sector == nil
}

// Apply returns a copy of w with the set fields replaced.
func (o WeightOverride) Apply(w WeightVector) WeightVector {
	if o.Regime != nil {
		w = w.WithRegime(*o.Regime)
	}
	if o.SmartMoney != nil {
		w = w.WithSmartMoney(*o.SmartMoney)
	}
	if o.Foreign != nil {
		w = w.WithForeign(*o.Foreign)
	}
	if o.Sector != nil {
		w = w.WithSector(*o.Sector)
	}
	return w
}

// RuleSource tells where a rule in the table came from.
type RuleSource string

const (
	RuleSourceBuiltin RuleSource = "builtin"
	RuleSourceCustom  RuleSource = "custom"
)

// RuleSummary describes one entry of the resolution table for listings.
type RuleSummary struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Priority int        `json:"priority"`
	Source   RuleSource `json:"source"`
}
