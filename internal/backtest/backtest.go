// Package backtest replays labelled signal bundles through the verdict engine
// and reports how often the engine's call matches the expected one.
package backtest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

// ErrNoScenarios is returned when a scenario file has no entries.
var ErrNoScenarios = errors.New("no scenarios to run")

// Verdicts lists the matrix axes in display order.
var Verdicts = []domain.Verdict{
	domain.VerdictProceed,
	domain.VerdictCaution,
	domain.VerdictNeutral,
	domain.VerdictWait,
}

// Scenario is one labelled bundle.
type Scenario struct {
	Name      string              `json:"name"`
	Bundle    domain.SignalBundle `json:"bundle"`
	Conflicts []domain.Conflict   `json:"conflicts,omitempty"`
	Expected  domain.Verdict      `json:"expected"`
}

// LoadScenarios reads JSON lines. Blank lines and lines starting with # are skipped.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	var scenarios []Scenario

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var s Scenario
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !s.Expected.Valid() {
			return nil, fmt.Errorf("line %d: unknown expected verdict %q", line, s.Expected)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("line-%d", line)
		}
		scenarios = append(scenarios, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, ErrNoScenarios
	}

	return scenarios, nil
}

// Evaluator produces a verdict for one scenario.
type Evaluator interface {
	Evaluate(ctx context.Context, s *Scenario) (domain.Verdict, error)
}

// LocalEvaluator runs scenarios in-process.
type LocalEvaluator struct {
	Processor *verdict.Processor
}

// Evaluate implements Evaluator.
func (e *LocalEvaluator) Evaluate(_ context.Context, s *Scenario) (domain.Verdict, error) {
	out := e.Processor.Evaluate(&s.Bundle, s.Conflicts)
	return out.Result.Verdict, nil
}

// HTTPEvaluator posts scenarios to a running server.
type HTTPEvaluator struct {
	BaseURL  string
	TenantID string
	Client   *http.Client
}

// NewHTTPEvaluator creates an evaluator with a bounded client timeout.
func NewHTTPEvaluator(baseURL, tenantID string, timeout time.Duration) *HTTPEvaluator {
	return &HTTPEvaluator{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		TenantID: tenantID,
		Client:   &http.Client{Timeout: timeout},
	}
}

type verdictRequest struct {
	RequestID string              `json:"requestId,omitempty"`
	Bundle    domain.SignalBundle `json:"bundle"`
	Conflicts []domain.Conflict   `json:"conflicts,omitempty"`
}

// Evaluate implements Evaluator.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, s *Scenario) (domain.Verdict, error) {
	body, err := json.Marshal(verdictRequest{RequestID: s.Name, Bundle: s.Bundle, Conflicts: s.Conflicts})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/verdict", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", e.TenantID)

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.DecisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Result.Verdict, nil
}

// CheckHealth fails unless GET /health answers 200.
func (e *HTTPEvaluator) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Mismatch is a scenario whose verdict differed from the label.
type Mismatch struct {
	Name     string
	Expected domain.Verdict
	Got      domain.Verdict
}

// Report aggregates one run.
type Report struct {
	Total   int
	Correct int
	Errors  int

	// Matrix[expected][got]
	Matrix map[domain.Verdict]map[domain.Verdict]int

	Mismatches []Mismatch
	Duration   time.Duration
}

func newReport() *Report {
	m := make(map[domain.Verdict]map[domain.Verdict]int, len(Verdicts))
	for _, v := range Verdicts {
		m[v] = make(map[domain.Verdict]int, len(Verdicts))
	}
	return &Report{Matrix: m}
}

// Accuracy is correct over evaluated, or 0 when nothing was evaluated.
func (r *Report) Accuracy() float64 {
	evaluated := r.Total - r.Errors
	if evaluated <= 0 {
		return 0
	}
	return float64(r.Correct) / float64(evaluated)
}

// Run evaluates every scenario with the given number of workers.
// Mismatches are reported in input order.
func Run(ctx context.Context, scenarios []Scenario, eval Evaluator, workers int) *Report {
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	got := make([]domain.Verdict, len(scenarios))
	failed := make([]bool, len(scenarios))

	work := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				v, err := eval.Evaluate(ctx, &scenarios[i])
				if err != nil {
					failed[i] = true
					continue
				}
				got[i] = v
			}
		}()
	}

	for i := range scenarios {
		if ctx.Err() != nil {
			failed[i] = true
			continue
		}
		work <- i
	}
	close(work)
	wg.Wait()

	report := newReport()
	report.Total = len(scenarios)
	for i, s := range scenarios {
		if failed[i] {
			report.Errors++
			continue
		}
		if row, ok := report.Matrix[s.Expected]; ok {
			row[got[i]]++
		}
		if got[i] == s.Expected {
			report.Correct++
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{Name: s.Name, Expected: s.Expected, Got: got[i]})
	}
	report.Duration = time.Since(start)

	return report
}
