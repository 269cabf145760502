package api

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// VerdictRequest is the request body for POST /verdict.
// Omitted numeric fields reach the engine as missing and are flagged in
// the result diagnostics.
type VerdictRequest struct {
	RequestID string            `json:"requestId,omitempty" validate:"max=128"`
	Bundle    BundleRequest     `json:"bundle"`
	Conflicts []ConflictRequest `json:"conflicts,omitempty" validate:"max=32,dive"`
}

// BundleRequest carries the three upstream signals.
type BundleRequest struct {
	Regime     RegimeRequest     `json:"regime"`
	SmartMoney SmartMoneyRequest `json:"smartMoney"`
	Sector     SectorRequest     `json:"sector"`
}

// RegimeRequest is the regime classifier output.
type RegimeRequest struct {
	Type       string   `json:"type" validate:"required,regime"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=100"`
}

// SmartMoneyRequest is the smart money analyzer output.
type SmartMoneyRequest struct {
	Score          *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	CombinedSignal string   `json:"combinedSignal" validate:"max=64"`
	Confidence     *float64 `json:"confidence" validate:"omitempty,gte=0,lte=100"`
	ForeignNetFlow *float64 `json:"foreignNetFlow"`
}

// SectorRequest is the sector rotation analyzer output.
type SectorRequest struct {
	Pattern       string   `json:"pattern" validate:"required,max=64"`
	Concentration *float64 `json:"concentration" validate:"omitempty,gte=0,lte=100"`
	FocusSectors  []string `json:"focusSectors" validate:"max=32,dive,required,max=64"`
	AvoidSectors  []string `json:"avoidSectors" validate:"max=32,dive,required,max=64"`
}

// ConflictRequest is one detected conflict.
type ConflictRequest struct {
	Type        string `json:"type" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
	Severity    string `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
}

// toDomain converts the request into engine input.
func (r *VerdictRequest) toDomain() (*domain.SignalBundle, []domain.Conflict) {
	b := r.Bundle
	bundle := &domain.SignalBundle{
		Regime: domain.RegimeSignal{
			Type:       domain.RegimeType(b.Regime.Type),
			Confidence: valueOrNaN(b.Regime.Confidence),
		},
		SmartMoney: domain.SmartMoneySignal{
			Score:          valueOrNaN(b.SmartMoney.Score),
			CombinedSignal: b.SmartMoney.CombinedSignal,
			Confidence:     valueOrNaN(b.SmartMoney.Confidence),
			ForeignNetFlow: valueOrNaN(b.SmartMoney.ForeignNetFlow),
		},
		Sector: domain.SectorSignal{
			Pattern:       domain.SectorPattern(b.Sector.Pattern),
			Concentration: valueOrNaN(b.Sector.Concentration),
			FocusSectors:  b.Sector.FocusSectors,
			AvoidSectors:  b.Sector.AvoidSectors,
		},
	}

	conflicts := make([]domain.Conflict, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		conflicts = append(conflicts, domain.Conflict{
			Type:        c.Type,
			Description: c.Description,
			Severity:    domain.Severity(c.Severity),
		})
	}
	return bundle, conflicts
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// RuleRequest is the request body for POST /rules.
type RuleRequest struct {
	ID          string         `json:"id" validate:"required,max=64,excludesall=/?#"`
	Name        string         `json:"name" validate:"required,max=128"`
	Description string         `json:"description,omitempty" validate:"max=512"`
	Version     string         `json:"version,omitempty" validate:"max=32"`
	Priority    int            `json:"priority" validate:"gte=0,lte=1000"`
	Expression  string         `json:"expression" validate:"required,max=4096"`
	Weights     WeightsRequest `json:"weights"`
	SpecialCase string         `json:"specialCase,omitempty" validate:"max=128"`
	Enabled     *bool          `json:"enabled,omitempty"`
}

// WeightsRequest is a partial weight vector; unset fields keep the current weight.
type WeightsRequest struct {
	Regime     *float64 `json:"regime,omitempty" validate:"omitempty,gt=0,lte=10"`
	SmartMoney *float64 `json:"smartMoney,omitempty" validate:"omitempty,gt=0,lte=10"`
	Foreign    *float64 `json:"foreign,omitempty" validate:"omitempty,gt=0,lte=10"`
	Sector     *float64 `json:"sector,omitempty" validate:"omitempty,gt=0,lte=10"`
}

func (r *RuleRequest) toDomain() *domain.RuleConfig {
	version := r.Version
	if version == "" {
		version = "1.0.0"
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &domain.RuleConfig{
		ID:          r.ID,
		TenantID:    GlobalTenantID,
		Name:        r.Name,
		Description: r.Description,
		Version:     version,
		Priority:    r.Priority,
		Expression:  r.Expression,
		Weights: domain.WeightOverride{
			Regime:     r.Weights.Regime,
			SmartMoney: r.Weights.SmartMoney,
			Foreign:    r.Weights.Foreign,
			Sector:     r.Weights.Sector,
		},
		SpecialCase: r.SpecialCase,
		Enabled:     enabled,
	}
}
