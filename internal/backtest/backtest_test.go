package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

const scenarioFile = `
# labelled market snapshots
{"name": "broad risk on", "expected": "PROCEED", "bundle": {"regime": {"type": "RISK_ON", "confidence": 100}, "smartMoney": {"score": 90, "combinedSignal": "ACCUMULATION", "confidence": 80, "foreignNetFlow": 0}, "sector": {"pattern": "Risk-On Rotation", "concentration": 70}}}
{"name": "capitulation", "expected": "WAIT", "bundle": {"regime": {"type": "RISK_OFF", "confidence": 100}, "smartMoney": {"score": 10, "combinedSignal": "DISTRIBUTION", "confidence": 80, "foreignNetFlow": -5000}, "sector": {"pattern": "No Clear Pattern", "concentration": 0}}}

{"name": "prop noise", "expected": "WAIT", "bundle": {"regime": {"type": "RISK_ON", "confidence": 100}, "smartMoney": {"score": 90}, "sector": {"pattern": "Risk-On Rotation"}}, "conflicts": [{"type": "High Prop Trading Noise", "description": "prop desks dominate", "severity": "CRITICAL"}]}
{"name": "mislabelled", "expected": "CAUTION", "bundle": {"regime": {"type": "RISK_ON", "confidence": 100}, "smartMoney": {"score": 90, "foreignNetFlow": 0}, "sector": {"pattern": "Risk-On Rotation", "concentration": 70}}}
`

func newLocalEvaluator(t *testing.T) *LocalEvaluator {
	t.Helper()
	engine, err := rules.NewEngine(domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	return &LocalEvaluator{Processor: verdict.NewProcessor(engine, domain.DefaultWeights())}
}

func loadTestScenarios(t *testing.T) []Scenario {
	t.Helper()
	scenarios, err := LoadScenarios(strings.NewReader(scenarioFile))
	if err != nil {
		t.Fatalf("failed to load scenarios: %v", err)
	}
	return scenarios
}

func TestLoadScenarios(t *testing.T) {
	scenarios := loadTestScenarios(t)

	if len(scenarios) != 4 {
		t.Fatalf("expected 4 scenarios, got %d", len(scenarios))
	}
	if scenarios[0].Name != "broad risk on" {
		t.Errorf("expected first scenario name, got %s", scenarios[0].Name)
	}
	if len(scenarios[2].Conflicts) != 1 {
		t.Errorf("expected 1 conflict, got %d", len(scenarios[2].Conflicts))
	}

	t.Run("DefaultName", func(t *testing.T) {
		s, err := LoadScenarios(strings.NewReader(`{"expected": "WAIT", "bundle": {"regime": {"type": "NEUTRAL"}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s[0].Name != "line-1" {
			t.Errorf("expected line-1, got %s", s[0].Name)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		_, err := LoadScenarios(strings.NewReader("{\"expected\": \"WAIT\"}\nnot json\n"))
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line 2 error, got %v", err)
		}
	})

	t.Run("UnknownVerdict", func(t *testing.T) {
		_, err := LoadScenarios(strings.NewReader(`{"expected": "BUY"}`))
		if err == nil {
			t.Error("expected error for unknown verdict")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := LoadScenarios(strings.NewReader("\n# nothing\n"))
		if !errors.Is(err, ErrNoScenarios) {
			t.Errorf("expected ErrNoScenarios, got %v", err)
		}
	})
}

func TestRunLocal(t *testing.T) {
	report := Run(context.Background(), loadTestScenarios(t), newLocalEvaluator(t), 3)

	if report.Total != 4 {
		t.Errorf("expected 4 scenarios, got %d", report.Total)
	}
	if report.Errors != 0 {
		t.Errorf("expected no errors, got %d", report.Errors)
	}
	if report.Correct != 3 {
		t.Errorf("expected 3 correct, got %d", report.Correct)
	}
	if got := report.Accuracy(); got != 0.75 {
		t.Errorf("expected accuracy 0.75, got %.4f", got)
	}

	if len(report.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.Name != "mislabelled" || m.Expected != domain.VerdictCaution || m.Got != domain.VerdictProceed {
		t.Errorf("unexpected mismatch %+v", m)
	}

	if report.Matrix[domain.VerdictWait][domain.VerdictWait] != 2 {
		t.Errorf("expected 2 WAIT/WAIT, got %d", report.Matrix[domain.VerdictWait][domain.VerdictWait])
	}
	if report.Matrix[domain.VerdictCaution][domain.VerdictProceed] != 1 {
		t.Errorf("expected 1 CAUTION/PROCEED, got %d", report.Matrix[domain.VerdictCaution][domain.VerdictProceed])
	}
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, *Scenario) (domain.Verdict, error) {
	return "", errors.New("boom")
}

func TestRunErrors(t *testing.T) {
	report := Run(context.Background(), loadTestScenarios(t), failingEvaluator{}, 0)

	if report.Errors != 4 {
		t.Errorf("expected 4 errors, got %d", report.Errors)
	}
	if report.Accuracy() != 0 {
		t.Errorf("expected accuracy 0, got %.4f", report.Accuracy())
	}
}

func TestHTTPEvaluator(t *testing.T) {
	var gotTenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/verdict":
			gotTenant = r.Header.Get("X-Tenant-ID")
			var req verdictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			v := domain.VerdictNeutral
			if req.Bundle.Regime.Type == domain.RegimeRiskOn {
				v = domain.VerdictProceed
			}
			json.NewEncoder(w).Encode(domain.DecisionResponse{Result: domain.VerdictResult{Verdict: v}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	eval := NewHTTPEvaluator(srv.URL+"/", "backtest", 5*time.Second)
	ctx := context.Background()

	if err := eval.CheckHealth(ctx); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}

	v, err := eval.Evaluate(ctx, &Scenario{Name: "x", Bundle: domain.SignalBundle{Regime: domain.RegimeSignal{Type: domain.RegimeRiskOn}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != domain.VerdictProceed {
		t.Errorf("expected PROCEED, got %s", v)
	}
	if gotTenant != "backtest" {
		t.Errorf("expected tenant backtest, got %s", gotTenant)
	}

	down := NewHTTPEvaluator(srv.URL+"/missing", "backtest", time.Second)
	if _, err := down.Evaluate(ctx, &Scenario{}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestWriteReport(t *testing.T) {
	report := Run(context.Background(), loadTestScenarios(t), newLocalEvaluator(t), 1)

	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"CONFUSION MATRIX", "PROCEED", "Accuracy:   0.7500", "MISMATCHES", "mislabelled"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report:\n%s", want, out)
		}
	}
}
