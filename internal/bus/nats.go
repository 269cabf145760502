package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	defaultNATSAttempts = 10
	defaultNATSWait     = 5 // seconds
	reconnectBufferSize = 8 << 20

	headerTenant    = "Kestrel-Tenant"
	headerMessageID = "Kestrel-Message-Id"
)

// NATSBus is the EventBus of the Pro tier. Messages travel as JSON
// envelopes on per-tenant subjects built by Subject.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	owner *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying up to NATSMaxReconnects
// times. The connection reconnects on its own after that.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = defaultNATSAttempts
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = defaultNATSWait * time.Second
	}

	conn, err := connectNATS(url, attempts, wait, natsOptions(cfg.NATSToken, attempts, wait)...)
	if err != nil {
		return nil, err
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*nats.Subscription]struct{}),
	}, nil
}

func natsOptions(token string, reconnects int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(reconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(reconnectBufferSize),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

func connectNATS(url string, attempts int, wait time.Duration, opts ...nats.Option) (*nats.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, lastErr)
}

// subjectToken replaces characters NATS reserves inside a subject token.
var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject maps a tenant topic to its NATS subject, kestrel.<tenant>.<topic>.
func Subject(tenantID, topic string) string {
	return fmt.Sprintf("kestrel.%s.%s", subjectToken.Replace(tenantID), topic)
}

// encodeMsg wraps msg for the wire. The tenant and message ID are
// repeated as headers so they are visible without decoding the body.
func encodeMsg(subject string, msg *domain.Message) (*nats.Msg, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	m := nats.NewMsg(subject)
	m.Data = data
	m.Header.Set(headerTenant, msg.TenantID)
	m.Header.Set(headerMessageID, msg.ID)
	return m, nil
}

func decodeMsg(m *nats.Msg) (*domain.Message, error) {
	msg := new(domain.Message)
	if err := json.Unmarshal(m.Data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode message on %s: %w", m.Subject, err)
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	if m.Reply != "" {
		msg.Metadata[MetaReplyTo] = m.Reply
	}
	return msg, nil
}

// Publish implements domain.EventBus.
func (b *NATSBus) Publish(_ context.Context, tenantID string, topic string, payload []byte) error {
	msg, err := newEnvelope(tenantID, topic, payload)
	if err != nil {
		return err
	}
	m, err := encodeMsg(Subject(tenantID, topic), msg)
	if err != nil {
		return err
	}
	return b.conn.PublishMsg(m)
}

// Subscribe implements domain.EventBus. With a queue group configured,
// replicas share the subject's messages instead of each receiving all.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	subject := Subject(tenantID, topic)
	cb := func(m *nats.Msg) {
		msg, err := decodeMsg(m)
		if err != nil {
			slog.Error("dropping undecodable NATS message", "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("message handler failed",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if b.queueGroup != "" {
		sub, err = b.conn.QueueSubscribe(subject, b.queueGroup, cb)
	} else {
		sub, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return &natsSubscription{topic: topic, sub: sub, owner: b}, nil
}

// Request implements domain.EventBus using a NATS inbox for the reply.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	msg, err := newEnvelope(tenantID, topic, payload)
	if err != nil {
		return nil, err
	}
	m, err := encodeMsg(Subject(tenantID, topic), msg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withRequestTimeout(ctx)
	defer cancel()

	resp, err := b.conn.RequestMsgWithContext(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("request on %s failed: %w", topic, err)
	}
	answer, err := decodeMsg(resp)
	if err != nil {
		return nil, err
	}
	return answer.Payload, nil
}

func (b *NATSBus) reply(_ context.Context, msg *domain.Message, payload []byte) error {
	answer, err := newEnvelope(msg.TenantID, msg.Topic, payload)
	if err != nil {
		return err
	}
	m, err := encodeMsg(msg.Metadata[MetaReplyTo], answer)
	if err != nil {
		return err
	}
	return b.conn.PublishMsg(m)
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Stats returns connection traffic counters.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Close unsubscribes everything and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

// Unsubscribe implements domain.Subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.owner.mu.Lock()
	delete(s.owner.subs, s.sub)
	s.owner.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic implements domain.Subscription.
func (s *natsSubscription) Topic() string {
	return s.topic
}
