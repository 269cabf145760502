// Package pipeline runs a verdict request end to end: memo lookup, engine,
// audit trail, cache and event publication.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

var (
	// ErrInvalidRequest is returned for requests the engine cannot run.
	ErrInvalidRequest = errors.New("invalid verdict request")

	// ErrNoRepository is returned by lookups when no repository is configured.
	ErrNoRepository = errors.New("repository not available")
)

// CacheObserver is told about every decision memo lookup.
type CacheObserver interface {
	ObserveCacheLookup(hit bool)
}

// Service wires the processor to the persistence and messaging layers.
// Repository, cache and bus are optional; a nil component is skipped.
type Service struct {
	processor   *verdict.Processor
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	decisionTTL time.Duration

	// Lookups is optional
	Lookups CacheObserver
}

// New creates a Service. decisionTTL <= 0 disables memoization.
func New(processor *verdict.Processor, repo domain.Repository, c domain.Cache, b domain.EventBus, decisionTTL time.Duration) *Service {
	return &Service{
		processor:   processor,
		repo:        repo,
		cache:       c,
		bus:         b,
		decisionTTL: decisionTTL,
	}
}

// Processor returns the underlying verdict processor.
func (s *Service) Processor() *verdict.Processor {
	return s.processor
}

// Request is one verdict invocation.
type Request struct {
	TenantID  string
	RequestID string
	TraceID   string
	Bundle    *domain.SignalBundle
	Conflicts []domain.Conflict
	StartTime time.Time
}

// Decide returns the decision for req. Identical inputs within the decision
// TTL return the memoized decision with Metadata.Cached set. Persistence,
// cache and publish failures are logged and never fail the call.
func (s *Service) Decide(ctx context.Context, req *Request) (*domain.Decision, error) {
	if req == nil || req.Bundle == nil {
		return nil, fmt.Errorf("%w: bundle is required", ErrInvalidRequest)
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidRequest)
	}

	start := req.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	memoKey := ""
	if s.memoEnabled() {
		memoKey = cache.Fingerprint(req.Bundle, req.Conflicts, s.processor.Rules.Generation())
		if d := s.lookupMemo(ctx, req.TenantID, memoKey); d != nil {
			return d, nil
		}
	}

	d := s.processor.Process(ctx, &verdict.DecisionInput{
		TenantID:  req.TenantID,
		RequestID: req.RequestID,
		TraceID:   req.TraceID,
		Bundle:    req.Bundle,
		Conflicts: req.Conflicts,
		StartTime: start,
	})

	if s.repo != nil {
		if err := s.repo.SaveDecision(ctx, req.TenantID, d); err != nil {
			slog.Error("failed to save decision",
				"tenant_id", req.TenantID,
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	s.remember(ctx, d, memoKey)

	if s.bus != nil {
		if err := bus.PublishDecision(ctx, s.bus, d); err != nil {
			slog.Error("failed to publish decision",
				"tenant_id", req.TenantID,
				"decision_id", d.ID,
				"error", err,
			)
		}
	}

	slog.Info("verdict issued",
		"tenant_id", d.TenantID,
		"decision_id", d.ID,
		"verdict", d.Result.Verdict,
		"conviction", d.Result.Conviction,
		"score", d.Score,
		"gated", d.Gated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return d, nil
}

func (s *Service) memoEnabled() bool {
	return s.cache != nil && s.decisionTTL > 0
}

func (s *Service) lookupMemo(ctx context.Context, tenantID, key string) *domain.Decision {
	d, err := s.cache.GetDecision(ctx, tenantID, key)
	if err != nil {
		slog.Warn("decision memo lookup failed", "tenant_id", tenantID, "error", err)
	}
	hit := err == nil && d != nil
	if s.Lookups != nil {
		s.Lookups.ObserveCacheLookup(hit)
	}
	if !hit {
		return nil
	}

	d.Metadata.Cached = true
	slog.Debug("decision memo hit", "tenant_id", tenantID, "decision_id", d.ID)
	return d
}

func (s *Service) remember(ctx context.Context, d *domain.Decision, memoKey string) {
	if s.cache == nil {
		return
	}

	ttl := s.decisionTTL
	keys := []string{domain.CacheKeyDecision + d.ID, domain.CacheKeyLatest}
	if memoKey != "" {
		keys = append(keys, memoKey)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	for _, key := range keys {
		if err := s.cache.SetDecision(ctx, d.TenantID, key, d, ttl); err != nil {
			slog.Warn("failed to cache decision",
				"tenant_id", d.TenantID,
				"key", key,
				"error", err,
			)
		}
	}
}

// Get returns a decision by ID from the cache, falling back to the repository.
func (s *Service) Get(ctx context.Context, tenantID, decisionID string) (*domain.Decision, error) {
	if s.cache != nil {
		if d, err := s.cache.GetDecision(ctx, tenantID, domain.CacheKeyDecision+decisionID); err == nil && d != nil {
			return d, nil
		}
	}
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.GetDecision(ctx, tenantID, decisionID)
}

// Latest returns the tenant's most recent decision from the cache, falling
// back to the repository. It returns (nil, nil) when the tenant has none.
func (s *Service) Latest(ctx context.Context, tenantID string) (*domain.Decision, error) {
	if s.cache != nil {
		if d, err := s.cache.GetDecision(ctx, tenantID, domain.CacheKeyLatest); err == nil && d != nil {
			return d, nil
		}
	}
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	list, err := s.repo.ListDecisions(ctx, tenantID, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// List returns recent decisions from the repository, newest first.
func (s *Service) List(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.Decision, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.ListDecisions(ctx, tenantID, since, limit)
}
