package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChannelBus implements domain.EventBus in-process. Each subscription owns
// a buffered inbox drained by its own goroutine. Work-queue topics go to one
// subscriber in turn; every other topic fans out.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	routes     map[string][]*inbox
	closed     bool
	cursor     atomic.Uint64
}

type inbox struct {
	bus     *ChannelBus
	subject string
	topic   string
	handler domain.MessageHandler
	ch      chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates a channel bus whose inboxes hold bufferSize
// messages. Zero or less uses 1000.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		routes:     make(map[string][]*inbox),
	}
}

// Publish delivers payload without blocking. A full inbox loses the message.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := checkTarget(tenantID, topic); err != nil {
		return err
	}
	return b.dispatch(newMessage(tenantID, topic, payload))
}

func (b *ChannelBus) dispatch(msg *domain.Message) error {
	// Held across delivery so Close cannot close an inbox mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	inboxes := b.routes[subject(msg.TenantID, msg.Topic)]
	if len(inboxes) == 0 {
		return nil
	}

	if domain.WorkQueueTopic(msg.Topic) {
		start := int(b.cursor.Add(1) % uint64(len(inboxes)))
		for i := range inboxes {
			if inboxes[(start+i)%len(inboxes)].offer(msg) {
				return nil
			}
		}
		slog.Warn("all work-queue inboxes full, dropping message",
			"tenant_id", msg.TenantID,
			"topic", msg.Topic,
			"message_id", msg.ID,
		)
		return nil
	}

	for _, in := range inboxes {
		if !in.offer(msg) {
			slog.Warn("subscriber inbox full, dropping message",
				"tenant_id", msg.TenantID,
				"topic", msg.Topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe starts a goroutine that feeds handler until Unsubscribe, Close
// or ctx ends.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := checkTarget(tenantID, topic); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	inCtx, cancel := context.WithCancel(ctx)
	in := &inbox{
		bus:     b,
		subject: subject(tenantID, topic),
		topic:   topic,
		handler: handler,
		ch:      make(chan *domain.Message, b.bufferSize),
		ctx:     inCtx,
		cancel:  cancel,
	}
	b.routes[in.subject] = append(b.routes[in.subject], in)

	go in.drain()
	return in, nil
}

// Request publishes payload and waits for the first reply sent with Respond.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if err := checkTarget(tenantID, topic); err != nil {
		return nil, err
	}

	replyTopic := replyTopicFor(topic)
	replies := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replies <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg := newMessage(tenantID, topic, payload)
	msg.Metadata[MetaReplyTopic] = replyTopic
	if err := b.dispatch(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription. It is safe to call more than once.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, inboxes := range b.routes {
		for _, in := range inboxes {
			in.stop()
		}
	}
	b.routes = make(map[string][]*inbox)
	return nil
}

// subscriberCount reports the live subscriptions for a tenant topic.
func (b *ChannelBus) subscriberCount(tenantID, topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.routes[subject(tenantID, topic)])
}

func (b *ChannelBus) detach(in *inbox) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inboxes := b.routes[in.subject]
	for i, other := range inboxes {
		if other == in {
			inboxes = append(inboxes[:i:i], inboxes[i+1:]...)
			break
		}
	}
	if len(inboxes) == 0 {
		delete(b.routes, in.subject)
		return
	}
	b.routes[in.subject] = inboxes
}

func (in *inbox) offer(msg *domain.Message) bool {
	select {
	case in.ch <- msg:
		return true
	default:
		return false
	}
}

func (in *inbox) drain() {
	for {
		select {
		case <-in.ctx.Done():
			return
		case msg, ok := <-in.ch:
			if !ok {
				return
			}
			deliver(in.ctx, in.handler, msg)
		}
	}
}

// stop is called once, from Close, with the bus lock held.
func (in *inbox) stop() {
	in.cancel()
	close(in.ch)
}

// Unsubscribe detaches the inbox. Messages still buffered are discarded.
func (in *inbox) Unsubscribe() error {
	in.bus.detach(in)
	in.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (in *inbox) Topic() string {
	return in.topic
}
