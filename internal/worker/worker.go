// Package worker consumes verdict requests from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// GlobalTenantID is subscribed when no tenant list is configured.
// Requests on it must name their tenant in the message.
const GlobalTenantID = "_global"

// Worker turns TopicVerdictRequested messages into decisions.
type Worker struct {
	bus     domain.EventBus
	service *pipeline.Service

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to subscribe for; empty subscribes GlobalTenantID
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, service *pipeline.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     eventBus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to verdict requests for the configured tenants.
// A tenant that fails to subscribe is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenantID}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}

	if started == 0 {
		return fmt.Errorf("no tenant subscriptions started")
	}

	slog.Info("workers started", "tenant_count", started)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicVerdictRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicVerdictRequested,
	)
	return nil
}

// processRequest decodes one request and runs it through the pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	var req domain.VerdictRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse verdict request",
			"message_id", msg.ID,
			"error", err,
		)
		return fmt.Errorf("failed to parse verdict request: %w", err)
	}

	if tenantID == GlobalTenantID {
		if req.TenantID == "" {
			return fmt.Errorf("verdict request %s on the global topic has no tenantId", msg.ID)
		}
		tenantID = req.TenantID
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}

	slog.Debug("processing verdict request",
		"tenant_id", tenantID,
		"request_id", requestID,
	)

	d, err := w.service.Decide(ctx, &pipeline.Request{
		TenantID:  tenantID,
		RequestID: requestID,
		TraceID:   msg.ID,
		Bundle:    &req.Bundle,
		Conflicts: req.Conflicts,
	})
	if err != nil {
		return err
	}

	if !bus.CanReply(msg) {
		return nil
	}
	payload, err := json.Marshal(domain.NewVerdictEvent(d))
	if err != nil {
		return fmt.Errorf("failed to encode verdict reply: %w", err)
	}
	return bus.Reply(ctx, w.bus, msg, payload)
}

// Stop cancels the worker context and removes all subscriptions.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped")
	return nil
}

// Stats describes the worker's active subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
