package domain

import (
	"context"
	"time"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" yaml:"type" toml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channel_buffer_size" toml:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" yaml:"nats_url" toml:"nats_url"`
	NATSToken         string `json:"-" yaml:"nats_token" toml:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"nats_max_reconnects" toml:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"nats_reconnect_wait" toml:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances subscriptions across service replicas when set
	NATSQueueGroup string `json:"natsQueueGroup" yaml:"nats_queue_group" toml:"nats_queue_group"`
}

// Standard topic names for the verdict pipeline.
const (
	TopicVerdictRequested = "kestrel.verdict.requested"
	TopicVerdictIssued    = "kestrel.verdict.issued"
	TopicVerdictAlert     = "kestrel.verdict.alert"
)

// VerdictRequest is the payload of TopicVerdictRequested.
// TenantID is only read on the worker's global subscription.
type VerdictRequest struct {
	TenantID  string       `json:"tenantId,omitempty"`
	RequestID string       `json:"requestId"`
	Bundle    SignalBundle `json:"bundle"`
	Conflicts []Conflict   `json:"conflicts"`
}

// VerdictEvent is the payload of TopicVerdictIssued and TopicVerdictAlert.
type VerdictEvent struct {
	DecisionID       string     `json:"decisionId"`
	TenantID         string     `json:"tenantId"`
	RequestID        string     `json:"requestId,omitempty"`
	Verdict          Verdict    `json:"verdict"`
	Conviction       Conviction `json:"conviction"`
	Confidence       int        `json:"confidence"`
	Score            float64    `json:"score"`
	Gated            bool       `json:"gated"`
	GatedBy          string     `json:"gatedBy,omitempty"`
	KeyConflictAlert string     `json:"keyConflictAlert,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// NewVerdictEvent summarizes a decision for publication.
func NewVerdictEvent(d *Decision) *VerdictEvent {
	return &VerdictEvent{
		DecisionID:       d.ID,
		TenantID:         d.TenantID,
		RequestID:        d.RequestID,
		Verdict:          d.Result.Verdict,
		Conviction:       d.Result.Conviction,
		Confidence:       d.Result.Confidence,
		Score:            d.Score,
		Gated:            d.Gated,
		GatedBy:          d.GatedBy,
		KeyConflictAlert: d.Result.KeyConflictAlert,
		Timestamp:        d.Result.Timestamp,
	}
}
