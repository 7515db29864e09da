package domain

import (
	"context"
)

// EventBus carries run lifecycle events. Implementations: Go channels
// (single process) or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. Returns a subscription
	// that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Ping checks bus health.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is an event envelope.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the engine.
const (
	// TopicRunRequest asks the scheduler to start a scoring run.
	TopicRunRequest = "cic.run.request"

	// TopicRunCompleted carries the RunSummary of a finished run.
	TopicRunCompleted = "cic.run.completed"

	// TopicHighRisk carries one Sample per record labeled High.
	TopicHighRisk = "cic.record.high"
)
