// Package store holds a single observable value. Writers replace it through
// Set and subscribers are notified through the event bus.
package store

import (
	"sync"

	"github.com/zeusync/otsync/internal/core/events/bus"
)

// EventStateChanged is published on the store's topic after each Set.
const EventStateChanged = "state.changed"

// Store is an explicit state container with a single Set entry point.
type Store[T any] struct {
	mu    sync.RWMutex
	value T
	topic string
	bus   bus.EventBus
	owned bool
}

// New creates a store publishing on topic. A nil bus gets a private one.
func New[T any](topic string, initial T, eventBus bus.EventBus) *Store[T] {
	owned := false
	if eventBus == nil {
		eventBus = bus.New()
		owned = true
	}
	return &Store[T]{value: initial, topic: topic, bus: eventBus, owned: owned}
}

// Topic returns the bus topic change events are published on.
func (s *Store[T]) Topic() string { return s.topic }

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value and notifies subscribers synchronously.
func (s *Store[T]) Set(value T) error {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
	return s.bus.Publish(s.topic, bus.NewEvent(EventStateChanged, s.topic, value))
}

// Subscribe registers fn to be called with every new value.
func (s *Store[T]) Subscribe(fn func(T)) (bus.Subscription, error) {
	return s.bus.Subscribe(s.topic, EventStateChanged, func(e bus.Event) error {
		if v, ok := e.Data().(T); ok {
			fn(v)
		}
		return nil
	})
}

func (s *Store[T]) Unsubscribe(sub bus.Subscription) error {
	return s.bus.Unsubscribe(sub)
}

// Close releases the private bus, if the store created one.
func (s *Store[T]) Close() error {
	if s.owned {
		return s.bus.Close()
	}
	return nil
}
