package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// reconnectBuffer holds publishes made while the connection is down.
const reconnectBuffer = 8 * 1024 * 1024

// NATSBus implements domain.EventBus on core NATS subjects of the form
// kestrel.<tenant>.<topic>. With a queue group set, work-queue topics are
// load-balanced across every Kestrel process in the group.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

// NewNATSBus dials cfg.NATSUrl, retrying up to NATSMaxReconnects times
// until ctx ends. The same limits govern reconnects after a drop.
func NewNATSBus(ctx context.Context, cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(reconnectBuffer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("event bus disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("event bus reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("event bus async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := dial(ctx, cfg.NATSUrl, cfg.NATSMaxReconnects, wait, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("event bus connected",
		"type", "nats",
		"url", conn.ConnectedUrl(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*natsSubscription]struct{}),
	}, nil
}

func dial(ctx context.Context, url string, attempts int, wait time.Duration, opts []nats.Option) (*nats.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("event bus connect failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to %s: %w", url, ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", url, attempts, lastErr)
}

// Publish sends payload on the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := checkTarget(tenantID, topic); err != nil {
		return err
	}
	return b.send(newMessage(tenantID, topic, payload))
}

func (b *NATSBus) send(msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Topic, err)
	}
	if err := b.conn.Publish(subject(msg.TenantID, msg.Topic), data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. Work-queue topics join the
// configured queue group.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := checkTarget(tenantID, topic); err != nil {
		return nil, err
	}

	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable event",
				"subject", m.Subject,
				"error", err,
			)
			return
		}
		deliver(ctx, handler, &msg)
	}

	subj := subject(tenantID, topic)
	var (
		natsSub *nats.Subscription
		err     error
	)
	if b.queueGroup != "" && domain.WorkQueueTopic(topic) {
		natsSub, err = b.conn.QueueSubscribe(subj, b.queueGroup, cb)
	} else {
		natsSub, err = b.conn.Subscribe(subj, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subj, err)
	}

	sub := &natsSubscription{bus: b, topic: topic, sub: natsSub}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Request publishes payload and waits for the first reply sent with
// Respond on a private reply subject.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if err := checkTarget(tenantID, topic); err != nil {
		return nil, err
	}

	replyTopic := replyTopicFor(topic)
	replySub, err := b.conn.SubscribeSync(subject(tenantID, replyTopic))
	if err != nil {
		return nil, fmt.Errorf("subscribe for %s reply: %w", topic, err)
	}
	defer replySub.Unsubscribe()

	msg := newMessage(tenantID, topic, payload)
	msg.Metadata[MetaReplyTopic] = replyTopic
	if err := b.send(msg); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	reply, err := replySub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("await %s reply: %w", topic, err)
	}

	var answer domain.Message
	if err := json.Unmarshal(reply.Data, &answer); err != nil {
		return nil, fmt.Errorf("failed to decode %s reply: %w", topic, err)
	}
	return answer.Payload, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("event bus not connected: %v", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close unsubscribes everything and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		if err := sub.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slog.Warn("failed to unsubscribe", "subject", sub.sub.Subject, "error", err)
		}
	}
	b.conn.Close()
	return nil
}

// Unsubscribe stops delivery and forgets the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
		return err
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
