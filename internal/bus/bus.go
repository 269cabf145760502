// Package bus carries verdict requests and verdict announcements between
// Kestrel components, in process over channels or across replicas over NATS.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrTenantRequired is returned when a bus call has no tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrClosed is returned by a bus after Close.
	ErrClosed = errors.New("bus is closed")
)

// MetaReplyTo is the message metadata key naming where a reply goes.
const MetaReplyTo = "reply_to"

const defaultRequestTimeout = 30 * time.Second

// New returns a ChannelBus for "channel" and a NATSBus for "nats".
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newEnvelope stamps payload with an ID and the current time.
func newEnvelope(tenantID, topic string, payload []byte) (*domain.Message, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return &domain.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}, nil
}

// withRequestTimeout bounds ctx when the caller set no deadline.
func withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}

// replier is implemented by buses whose messages can be answered.
type replier interface {
	reply(ctx context.Context, msg *domain.Message, payload []byte) error
}

// CanReply reports whether msg arrived through Request.
func CanReply(msg *domain.Message) bool {
	return msg.Metadata[MetaReplyTo] != ""
}

// Reply answers a message received through Request.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	if !CanReply(msg) {
		return fmt.Errorf("message %s expects no reply", msg.ID)
	}
	r, ok := b.(replier)
	if !ok {
		return fmt.Errorf("%T does not support replies", b)
	}
	return r.reply(ctx, msg, payload)
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// PublishDecision announces a decision on TopicVerdictIssued, and also on
// TopicVerdictAlert when a critical gate fired.
func PublishDecision(ctx context.Context, b domain.EventBus, d *domain.Decision) error {
	event := domain.NewVerdictEvent(d)
	if err := PublishJSON(ctx, b, d.TenantID, domain.TopicVerdictIssued, event); err != nil {
		return err
	}
	if !d.Gated {
		return nil
	}
	return PublishJSON(ctx, b, d.TenantID, domain.TopicVerdictAlert, event)
}
