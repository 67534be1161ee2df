package bus

import "time"

// Event is a single notification delivered to subscribers.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler handles an event. A returned error is collected and reported
// back to the publisher but does not stop delivery to other handlers.
type EventHandler func(event Event) error

// Subscription is a live registration on the bus.
type Subscription interface {
	ID() string
	Topic() string
	EventType() string
	IsActive() bool
	Cancel() error
}

// EventBus is an in-process publish/subscribe hub. Handlers are invoked
// synchronously on the publishing goroutine.
type EventBus interface {
	Publish(topic string, event Event) error
	Subscribe(topic, eventType string, handler EventHandler) (Subscription, error)
	Unsubscribe(sub Subscription) error

	Topics() []TopicInfo
	Metrics() Metrics
	Close() error
}

// TopicInfo describes the subscribers registered on one topic.
type TopicInfo struct {
	Name       string
	EventTypes int
	Subs       int
}

// Metrics counts bus traffic since creation.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
}
