// Package verdict turns a signal bundle and its conflicts into an explainable
// trading verdict: critical gate, rule resolution, scoring, classification and
// rationale.
package verdict

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion is stamped on every decision.
const EngineVersion = "kestrel-1.0"

var tracer = otel.Tracer("kestrel-verdict")

// Observer receives every completed decision.
type Observer interface {
	ObserveDecision(d *domain.Decision, elapsed time.Duration)
}

// Processor runs the verdict pipeline.
type Processor struct {
	// Rules resolves the weight vector for each bundle
	Rules *rules.Engine

	// Weights is the default vector handed to the rule engine
	Weights domain.WeightVector

	// Clock stamps results; defaults to UTC wall time
	Clock func() time.Time

	// Observer is optional
	Observer Observer
}

// NewProcessor creates a processor with the given rule engine and default weights.
func NewProcessor(engine *rules.Engine, weights domain.WeightVector) *Processor {
	return &Processor{
		Rules:   engine,
		Weights: weights,
		Clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Outcome is the full result of one pure evaluation.
type Outcome struct {
	Result         domain.VerdictResult
	Resolution     domain.ResolutionContext
	Score          float64
	Gated          bool
	GatedBy        string
	RulesEvaluated int
}

// Evaluate runs gate, rules, scoring and explanation for one bundle.
// It reads its inputs only; the timestamp is the sole non-deterministic field.
func (p *Processor) Evaluate(bundle *domain.SignalBundle, conflicts []domain.Conflict) Outcome {
	th := p.Rules.Thresholds()

	if gated, gateType := checkCriticalConflicts(bundle, conflicts, th); gated != nil {
		gated.Timestamp = p.now()
		return Outcome{
			Result: *gated,
			Resolution: domain.ResolutionContext{
				AppliedRules: []string{},
				Weights:      p.Weights,
				SpecialCases: []string{},
			},
			Gated:   true,
			GatedBy: gateType,
		}
	}

	rc, evaluated := p.Rules.Resolve(bundle, conflicts, p.Weights)
	scored := Score(bundle, rc.Weights, th)

	result := buildResult(bundle, scored, conflicts, rc, th)
	result.Timestamp = p.now()

	return Outcome{
		Result:         result,
		Resolution:     rc,
		Score:          scored.Normalized,
		RulesEvaluated: evaluated,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID  string
	RequestID string
	TraceID   string
	Bundle    *domain.SignalBundle
	Conflicts []domain.Conflict
	StartTime time.Time
}

// Process evaluates the input and wraps the outcome in a Decision record.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Decision {
	_, span := tracer.Start(ctx, "verdict.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", input.TenantID),
			attribute.String("request.id", input.RequestID),
		),
	)
	defer span.End()

	start := time.Now()
	out := p.Evaluate(input.Bundle, input.Conflicts)
	elapsed := time.Since(start)

	conflicts := input.Conflicts
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}

	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = start
	}

	d := &domain.Decision{
		ID:         uuid.New().String(),
		TenantID:   input.TenantID,
		RequestID:  input.RequestID,
		Score:      out.Score,
		Gated:      out.Gated,
		GatedBy:    out.GatedBy,
		Bundle:     recordedBundle(input.Bundle),
		Conflicts:  conflicts,
		Resolution: out.Resolution,
		Result:     out.Result,
		Metadata: domain.DecisionMetadata{
			TraceID:        input.TraceID,
			DecisionMs:     elapsed.Milliseconds(),
			TotalMs:        time.Since(startTime).Milliseconds(),
			RulesEvaluated: out.RulesEvaluated,
			EngineVersion:  EngineVersion,
		},
	}

	span.SetAttributes(
		attribute.String("decision.id", d.ID),
		attribute.String("verdict", string(d.Result.Verdict)),
		attribute.Bool("gated", d.Gated),
	)

	if p.Observer != nil {
		p.Observer.ObserveDecision(d, elapsed)
	}

	return d
}

func (p *Processor) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock()
}

// recordedBundle copies the bundle with non-finite numbers zeroed so the
// record stays JSON-encodable. Diagnostics keep which inputs were defaulted.
func recordedBundle(b *domain.SignalBundle) domain.SignalBundle {
	out := *b
	out.Regime.Confidence = finiteOrZero(out.Regime.Confidence)
	out.SmartMoney.Score = finiteOrZero(out.SmartMoney.Score)
	out.SmartMoney.Confidence = finiteOrZero(out.SmartMoney.Confidence)
	out.SmartMoney.ForeignNetFlow = finiteOrZero(out.SmartMoney.ForeignNetFlow)
	out.Sector.Concentration = finiteOrZero(out.Sector.Concentration)
	return out
}
