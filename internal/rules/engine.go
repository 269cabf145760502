// Package rules provides the resolution rule engine: a priority-ordered table of
// builtin rules plus operator-defined CEL rules.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input is everything a rule condition may look at.
type Input struct {
	Bundle     *domain.SignalBundle
	Conflicts  []domain.Conflict
	Thresholds domain.Thresholds
}

// Condition reports whether a rule matches the input.
type Condition func(in Input) bool

// Resolver computes the effect of a matched rule from the current weights.
type Resolver func(in Input, current domain.WeightVector) Resolution

// Resolution is the effect of a rule. Nil Weights keeps the current vector.
type Resolution struct {
	Weights     *domain.WeightVector
	SpecialCase string
}

// Rule is one entry of the resolution table.
type Rule struct {
	ID        string
	Name      string
	Priority  int
	Source    domain.RuleSource
	Condition Condition
	Resolve   Resolver
}

// Engine resolves a signal bundle against the rule table.
type Engine struct {
	mu          sync.RWMutex
	env         *cel.Env
	thresholds  domain.Thresholds
	customRules map[string]*CompiledRule

	// generation changes whenever the custom rule set changes
	generation uint64
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule engine with the given thresholds.
func NewEngine(thresholds domain.Thresholds) (*Engine, error) {
	// CEL environment exposes the bundle as flat variables
	env, err := cel.NewEnv(
		cel.Variable("regime_type", cel.StringType),
		cel.Variable("regime_confidence", cel.DoubleType),
		cel.Variable("smart_money_score", cel.DoubleType),
		cel.Variable("smart_money_confidence", cel.DoubleType),
		cel.Variable("combined_signal", cel.StringType),
		cel.Variable("foreign_net_flow", cel.DoubleType),
		cel.Variable("sector_pattern", cel.StringType),
		cel.Variable("sector_concentration", cel.DoubleType),
		cel.Variable("focus_sectors", cel.ListType(cel.StringType)),
		cel.Variable("avoid_sectors", cel.ListType(cel.StringType)),
		cel.Variable("conflict_types", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:         env,
		thresholds:  thresholds,
		customRules: make(map[string]*CompiledRule),
	}, nil
}

// Thresholds returns the thresholds the engine was built with.
func (e *Engine) Thresholds() domain.Thresholds {
	return e.thresholds
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a custom rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.customRules[cfg.ID] = compiled
	e.generation++
	return nil
}

// LoadRules compiles and loads multiple custom rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all custom rules and loads new ones.
// Builtin rules are not affected.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.customRules = newRules
	e.generation++
	return nil
}

// Generation identifies the current custom rule set. Decisions computed
// under different generations may differ for the same input.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// RulesCount returns the number of loaded custom rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.customRules)
}

// GetLoadedRules returns the loaded custom rule configurations in table order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	compiled := e.snapshot()
	configs := make([]*domain.RuleConfig, 0, len(compiled))
	for _, c := range compiled {
		configs = append(configs, c.Config)
	}
	return configs
}

// Table returns a snapshot of the full rule table in evaluation order:
// priority descending, builtin before custom at equal priority.
func (e *Engine) Table() []Rule {
	table := BuiltinRules()
	for _, c := range e.snapshot() {
		table = append(table, c.rule())
	}

	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Priority > table[j].Priority
	})
	return table
}

// snapshot copies the custom rules sorted by priority descending, then ID.
func (e *Engine) snapshot() []*CompiledRule {
	e.mu.RLock()
	out := make([]*CompiledRule, 0, len(e.customRules))
	for _, c := range e.customRules {
		out = append(out, c)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Config.Priority != out[j].Config.Priority {
			return out[i].Config.Priority > out[j].Config.Priority
		}
		return out[i].Config.ID < out[j].Config.ID
	})
	return out
}

// Summaries describes the rule table for listings.
func (e *Engine) Summaries() []domain.RuleSummary {
	table := e.Table()
	out := make([]domain.RuleSummary, 0, len(table))
	for _, r := range table {
		out = append(out, domain.RuleSummary{
			ID:       r.ID,
			Name:     r.Name,
			Priority: r.Priority,
			Source:   r.Source,
		})
	}
	return out
}

// Resolve walks the rule table and applies the first matching rule only.
// Lower-priority rules are never evaluated once one matches. This
// winner-take-all policy means at most one rule shapes the weights of a
// verdict; composing several matches would need a product decision first.
//
// The returned int is the number of rule conditions evaluated.
func (e *Engine) Resolve(bundle *domain.SignalBundle, conflicts []domain.Conflict, defaults domain.WeightVector) (domain.ResolutionContext, int) {
	in := Input{Bundle: bundle, Conflicts: conflicts, Thresholds: e.thresholds}

	rc := domain.ResolutionContext{
		AppliedRules: []string{},
		Weights:      defaults,
		SpecialCases: []string{},
	}

	evaluated := 0
	for _, rule := range e.Table() {
		evaluated++
		if !rule.Condition(in) {
			continue
		}

		res := rule.Resolve(in, rc.Weights)
		if res.Weights != nil {
			rc.Weights = *res.Weights
		}
		rc.AppliedRules = append(rc.AppliedRules, rule.Name)
		if res.SpecialCase != "" {
			rc.SpecialCases = append(rc.SpecialCases, res.SpecialCase)
		}
		break
	}

	return rc, evaluated
}

// Close drops all custom rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customRules = make(map[string]*CompiledRule)
	e.generation++
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// rule adapts a compiled CEL rule to the table entry shape.
func (c *CompiledRule) rule() Rule {
	cfg := c.Config
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}

	return Rule{
		ID:       cfg.ID,
		Name:     name,
		Priority: cfg.Priority,
		Source:   domain.RuleSourceCustom,
		Condition: func(in Input) bool {
			out, _, err := c.Program.Eval(activation(in))
			if err != nil {
				slog.Debug("custom rule evaluation failed",
					"rule_id", cfg.ID,
					"error", err,
				)
				return false
			}
			matched, ok := out.(types.Bool)
			return ok && bool(matched)
		},
		Resolve: func(in Input, w domain.WeightVector) Resolution {
			res := Resolution{SpecialCase: cfg.SpecialCase}
			if !cfg.Weights.IsEmpty() {
				next := cfg.Weights.Apply(w)
				res.Weights = &next
			}
			return res
		},
	}
}

// activation builds the CEL variables for one bundle.
func activation(in Input) map[string]any {
	b := in.Bundle

	conflictTypes := make([]string, 0, len(in.Conflicts))
	for _, c := range in.Conflicts {
		conflictTypes = append(conflictTypes, c.Type)
	}

	return map[string]any{
		"regime_type":            string(b.Regime.Type),
		"regime_confidence":      b.Regime.Confidence,
		"smart_money_score":      b.SmartMoney.Score,
		"smart_money_confidence": b.SmartMoney.Confidence,
		"combined_signal":        b.SmartMoney.CombinedSignal,
		"foreign_net_flow":       b.SmartMoney.ForeignNetFlow,
		"sector_pattern":         string(b.Sector.Pattern),
		"sector_concentration":   b.Sector.Concentration,
		"focus_sectors":          nonNil(b.Sector.FocusSectors),
		"avoid_sectors":          nonNil(b.Sector.AvoidSectors),
		"conflict_types":         conflictTypes,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
