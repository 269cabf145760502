package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// GlobalTenantID is used for custom rules that apply to all tenants.
const GlobalTenantID = "*"

// List limits for GET /verdicts.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service *pipeline.Service
	engine  *rules.Engine
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler.
func NewHandler(service *pipeline.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		service: service,
		engine:  service.Processor().Rules,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// Verdict handles POST /verdict.
func (h *Handler) Verdict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req VerdictRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid verdict request",
			"fields": errs,
		})
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = requestIDFromContext(ctx)
	}

	bundle, conflicts := req.toDomain()
	d, err := h.service.Decide(ctx, &pipeline.Request{
		TenantID:  tenantFromContext(ctx),
		RequestID: requestID,
		TraceID:   traceIDFromContext(ctx),
		Bundle:    bundle,
		Conflicts: conflicts,
		StartTime: start,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("verdict failed", "error", err)
		writeError(w, http.StatusInternalServerError, "verdict failed")
		return
	}

	writeJSON(w, http.StatusOK, d.ToResponse())
}

// GetVerdict handles GET /verdicts/{id}.
func (h *Handler) GetVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	d, err := h.service.Get(ctx, tenantFromContext(ctx), id)
	switch {
	case errors.Is(err, pipeline.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "decision not found")
	case err != nil:
		slog.Error("failed to get decision", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get decision")
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

// LatestVerdict handles GET /verdicts/latest.
func (h *Handler) LatestVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := h.service.Latest(ctx, tenantFromContext(ctx))
	switch {
	case errors.Is(err, pipeline.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		slog.Error("failed to get latest decision", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get latest decision")
	case d == nil:
		writeError(w, http.StatusNotFound, "no decisions for tenant")
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

// ListVerdicts handles GET /verdicts?limit=&since=.
func (h *Handler) ListVerdicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	var since time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	list, err := h.service.List(ctx, tenantFromContext(ctx), since, limit)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoRepository) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		slog.Error("failed to list decisions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if list == nil {
		list = []*domain.Decision{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": list,
		"count":     len(list),
		"limit":     limit,
	})
}

// ListRules returns the full resolution table in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	table := h.engine.Summaries()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":      table,
		"count":      len(table),
		"custom":     h.engine.RulesCount(),
		"generation": h.engine.Generation(),
	})
}

// GetRule returns a custom rule, or the table entry for a builtin one.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	for _, s := range h.engine.Summaries() {
		if s.ID == ruleID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRule validates, persists and loads a custom rule.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RuleRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid rule",
			"fields": errs,
		})
		return
	}
	if strings.HasPrefix(req.ID, rules.BuiltinPrefix) {
		writeError(w, http.StatusBadRequest, "rule id prefix "+rules.BuiltinPrefix+" is reserved")
		return
	}

	cfg := req.toDomain()
	if err := h.engine.ValidateRule(cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, cfg); err != nil {
			slog.Error("failed to save rule config", "id", cfg.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return
		}
	}

	if cfg.Enabled {
		if err := h.engine.LoadRule(cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
			return
		}
	}

	slog.Info("rule created", "id", cfg.ID, "name", cfg.Name, "priority", cfg.Priority)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":       cfg,
		"generation": h.engine.Generation(),
	})
}

// DeleteRule soft-deletes a custom rule and reloads the table.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	if err := h.repo.DeleteRuleConfig(ctx, GlobalTenantID, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	count, err := h.reload(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rule deleted but reload failed: "+err.Error())
		return
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": ruleID,
		"count":   count,
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	count, err := h.reload(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "rules reloaded successfully",
		"count":      count,
		"generation": h.engine.Generation(),
	})
}

func (h *Handler) reload(r *http.Request) (int, error) {
	dbRules, err := h.repo.ListRuleConfigs(r.Context(), GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		return 0, err
	}
	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		return 0, err
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	return len(dbRules), nil
}

// Health reports component health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
