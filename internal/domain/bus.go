package domain

import (
	"context"
)

// EventBus carries underwriting events between the API, the async worker
// and downstream consumers. Every call is scoped to a tenant.
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
	Type string `json:"type" toml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" toml:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" toml:"nats_url"`
	NATSToken         string `json:"-" toml:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" toml:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" toml:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances work-queue topics across processes.
	NATSQueueGroup string `json:"natsQueueGroup" toml:"nats_queue_group"`
}

// Standard topic names for the underwriting pipeline.
const (
	TopicApplicationSubmitted = "kestrel.application.submitted"
	TopicDecision             = "kestrel.decision"
	TopicNotification         = "kestrel.notification"
)

// WorkQueueTopic reports whether each message on topic should reach a
// single subscriber rather than all of them.
func WorkQueueTopic(topic string) bool {
	return topic == TopicApplicationSubmitted
}

// ApplicationMessage is the payload published on TopicApplicationSubmitted.
type ApplicationMessage struct {
	TenantID string      `json:"tenantId"`
	Features RawFeatures `json:"application"`
}

// Notification is the payload published on TopicNotification when an
// application needs applicant follow-up.
type Notification struct {
	EvaluationID  string   `json:"evaluationId"`
	ApplicationID string   `json:"applicationId"`
	ApplicantID   string   `json:"applicantId,omitempty"`
	Template      string   `json:"template"`
	Decision      Decision `json:"decision"`
	Items         []string `json:"items,omitempty"`
}

// Notification templates.
const (
	TemplateAdverseAction    = "ADVERSE_ACTION"
	TemplateConditionsNotice = "CONDITIONS_NOTICE"
	TemplateReviewPending    = "REVIEW_PENDING"
)
