// Package bus carries underwriting events between the API, the worker and
// downstream consumers, over Go channels or NATS.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// requestTimeout bounds Request when the context carries no deadline.
const requestTimeout = 30 * time.Second

// MetaReplyTopic names the metadata key carrying a request's reply topic.
const MetaReplyTopic = "reply_topic"

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("event bus is closed")

	// ErrInvalidTarget is returned for a tenant or topic that cannot be
	// addressed.
	ErrInvalidTarget = errors.New("invalid bus target")
)

// New creates an event bus from configuration: channels for the community
// tier, NATS for pro.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(context.Background(), cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// Respond answers a message sent with Request. It fails for a message that
// expects no reply.
func Respond(ctx context.Context, b domain.EventBus, req *domain.Message, payload []byte) error {
	replyTopic := req.Metadata[MetaReplyTopic]
	if replyTopic == "" {
		return fmt.Errorf("%w: message %s expects no reply", ErrInvalidTarget, req.ID)
	}
	return b.Publish(ctx, req.TenantID, replyTopic, payload)
}

func replyTopicFor(topic string) string {
	return topic + ".reply." + uuid.New().String()
}

// checkTarget rejects tenants that would escape their subject token.
// Topics may be dotted but never empty or wildcarded.
func checkTarget(tenantID, topic string) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: tenantID is required", ErrInvalidTarget)
	case strings.ContainsAny(tenantID, ".*> \t\r\n"):
		return fmt.Errorf("%w: tenantID %q contains a reserved character", ErrInvalidTarget, tenantID)
	case topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidTarget)
	case strings.ContainsAny(topic, "*> \t\r\n"),
		strings.HasPrefix(topic, "."), strings.HasSuffix(topic, "."), strings.Contains(topic, ".."):
		return fmt.Errorf("%w: topic %q is not a valid subject", ErrInvalidTarget, topic)
	}
	return nil
}

// subject addresses topic for one tenant.
func subject(tenantID, topic string) string {
	return "kestrel." + tenantID + "." + topic
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// deliver runs handler and logs its failure. Handlers own their retries.
func deliver(ctx context.Context, handler domain.MessageHandler, msg *domain.Message) {
	if err := handler(ctx, msg); err != nil {
		slog.Error("event handler failed",
			"tenant_id", msg.TenantID,
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
	}
}
