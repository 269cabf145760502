package domain

// Decision is the persisted record of one verdict invocation.
type Decision struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	RequestID string `json:"requestId,omitempty"`

	// Score is the normalized 0-100 score; zero when the critical gate fired.
	Score float64 `json:"score"`

	// Gated is true when a critical conflict short-circuited resolution.
	Gated   bool   `json:"gated"`
	GatedBy string `json:"gatedBy,omitempty"`

	Bundle     SignalBundle      `json:"bundle"`
	Conflicts  []Conflict        `json:"conflicts"`
	Resolution ResolutionContext `json:"resolution"`
	Result     VerdictResult     `json:"result"`

	Metadata DecisionMetadata `json:"metadata"`
}

// DecisionMetadata contains processing information.
type DecisionMetadata struct {
	TraceID        string `json:"traceId"`
	DecisionMs     int64  `json:"decisionMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
	Cached         bool   `json:"cached,omitempty"`
}

// DecisionResponse is the API response for a verdict request.
type DecisionResponse struct {
	DecisionID string            `json:"decisionId"`
	TenantID   string            `json:"tenantId"`
	Score      float64           `json:"score"`
	Gated      bool              `json:"gated"`
	Resolution ResolutionContext `json:"resolution"`
	Result     VerdictResult     `json:"result"`
	Metadata   DecisionMetadata  `json:"metadata"`
}

// ToResponse converts a Decision to an API response.
func (d *Decision) ToResponse() *DecisionResponse {
	return &DecisionResponse{
		DecisionID: d.ID,
		TenantID:   d.TenantID,
		Score:      d.Score,
		Gated:      d.Gated,
		Resolution: d.Resolution,
		Result:     d.Result,
		Metadata:   d.Metadata,
	}
}
