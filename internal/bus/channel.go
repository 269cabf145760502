package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultChannelBuffer = 1000

// route addresses one tenant's topic.
type route struct {
	tenantID string
	topic    string
}

// ChannelBus is the in-process EventBus of the Community tier.
// Every subscriber of a route gets its own buffered inbox; a publish
// to a full inbox is dropped and counted rather than blocking.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	routes     map[route][]*channelSubscription
	closed     bool

	dropped atomic.Uint64
}

type channelSubscription struct {
	id      string
	route   route
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	stop    context.CancelFunc
	owner   *ChannelBus
}

// NewChannelBus creates a bus whose subscriber inboxes hold bufferSize
// messages, 1000 when bufferSize is not positive.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = defaultChannelBuffer
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		routes:     make(map[route][]*channelSubscription),
	}
}

// Publish fans payload out to the route's subscribers.
func (b *ChannelBus) Publish(_ context.Context, tenantID string, topic string, payload []byte) error {
	msg, err := newEnvelope(tenantID, topic, payload)
	if err != nil {
		return err
	}
	return b.deliver(msg)
}

func (b *ChannelBus) deliver(msg *domain.Message) error {
	// Close cannot run while inboxes are being written.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.routes[route{msg.TenantID, msg.Topic}] {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber inbox full, message dropped",
				"tenant_id", msg.TenantID,
				"topic", msg.Topic,
				"subscription_id", sub.id,
			)
		}
	}
	return nil
}

// Subscribe runs handler for every message on the tenant's topic until
// the subscription or ctx ends.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, stop := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		route:   route{tenantID, topic},
		handler: handler,
		inbox:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		stop:    stop,
		owner:   b,
	}
	b.routes[sub.route] = append(b.routes[sub.route], sub)

	go sub.loop()
	return sub, nil
}

// Request publishes payload with a private reply topic and waits for the
// first answer sent through Reply.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	msg, err := newEnvelope(tenantID, topic, payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withRequestTimeout(ctx)
	defer cancel()

	answers := make(chan []byte, 1)
	replyTopic := topic + ".reply." + msg.ID
	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(_ context.Context, m *domain.Message) error {
		select {
		case answers <- m.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg.Metadata[MetaReplyTo] = replyTopic
	if err := b.deliver(msg); err != nil {
		return nil, err
	}

	select {
	case answer := <-answers:
		return answer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *ChannelBus) reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	return b.Publish(ctx, msg.TenantID, msg.Metadata[MetaReplyTo], payload)
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Dropped counts messages skipped because a subscriber inbox was full.
func (b *ChannelBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscription. Later calls are no-ops.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.routes {
		for _, sub := range subs {
			sub.stop()
		}
	}
	clear(b.routes)
	return nil
}

func (b *ChannelBus) detach(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.routes[sub.route]
	if i := slices.Index(subs, sub); i >= 0 {
		subs = slices.Delete(subs, i, i+1)
	}
	if len(subs) == 0 {
		delete(b.routes, sub.route)
		return
	}
	b.routes[sub.route] = subs
}

func (s *channelSubscription) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("message handler failed",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Unsubscribe implements domain.Subscription.
func (s *channelSubscription) Unsubscribe() error {
	s.stop()
	s.owner.detach(s)
	return nil
}

// Topic implements domain.Subscription.
func (s *channelSubscription) Topic() string {
	return s.route.topic
}
