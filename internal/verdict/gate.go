package verdict

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// criticalGate is a conflict severe enough to skip resolution entirely.
type criticalGate struct {
	ConflictType string
	Explanation  string
	Takeaway     string
}

// criticalGates returns the gate table. New gates are appended here.
func criticalGates() []criticalGate {
	return []criticalGate{
		{
			ConflictType: domain.ConflictHighPropTradingNoise,
			Explanation:  "Signal resolution suspended: heavy proprietary trading activity is distorting flow data, so no directional call can be trusted right now.",
			Takeaway:     "Stay on the sidelines until prop trading noise subsides and signals realign.",
		},
	}
}

// checkCriticalConflicts returns a fixed WAIT result when a gated conflict is
// present, and nil otherwise. The second return value is the gate's conflict type.
func checkCriticalConflicts(bundle *domain.SignalBundle, conflicts []domain.Conflict, th domain.Thresholds) (*domain.VerdictResult, string) {
	for _, gate := range criticalGates() {
		for _, c := range conflicts {
			if !strings.EqualFold(strings.TrimSpace(c.Type), gate.ConflictType) {
				continue
			}

			return &domain.VerdictResult{
				Verdict:            domain.VerdictWait,
				Conviction:         domain.ConvictionLow,
				PrimaryDriver:      domain.DriverNone,
				SectorFocus:        domain.FocusNeutral,
				Confidence:         gatedConfidence,
				Reasoning:          []string{fmt.Sprintf("Critical conflict %q overrides signal resolution", gate.ConflictType)},
				Explanation:        gate.Explanation,
				ActionableTakeaway: gate.Takeaway,
				KeyConflictAlert:   c.Description,
				ConflictingSignals: snapshotSignals(bundle, th),
				Diagnostics:        domain.Diagnostics{},
			}, gate.ConflictType
		}
	}
	return nil, ""
}

const gatedConfidence = 30
