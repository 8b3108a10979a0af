// Package event provides the process-wide change notification bus.
//
// The bus decouples mutating components from their observers: after a
// successful cart or favorites mutation the owning engine publishes to
// its topic, and independent observers (header badge counts, dropdown
// panels) re-read state without being wired to the mutating component.
package event

import (
	"log/slog"
	"sync"
)

// Topic identifies a change-notification channel.
type Topic string

const (
	// TopicSession fires on any session state transition.
	TopicSession Topic = "session"
	// TopicCart fires after a successful cart mutation or load.
	TopicCart Topic = "cart"
	// TopicFavorites fires after a successful favorites mutation or load.
	TopicFavorites Topic = "favorites"
)

// Bus is a synchronous fan-out notification bus. Subscribers receive no
// payload; the contract is "something changed, re-read". Thread-safe.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic]map[int]func(Topic)
	logger *slog.Logger
}

// NewBus creates a new Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Topic]map[int]func(Topic)),
		logger: logger,
	}
}

// Subscribe registers fn for the topic and returns an unsubscribe func.
// The unsubscribe func is idempotent.
func (b *Bus) Subscribe(topic Topic, fn func(Topic)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(Topic))
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish notifies all subscribers of the topic synchronously.
// A panicking subscriber is isolated so it cannot take down the
// publisher or starve the remaining subscribers.
func (b *Bus) Publish(topic Topic) {
	b.mu.RLock()
	fns := make([]func(Topic), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.safeCall(topic, fn)
	}
}

// safeCall invokes fn, recovering and logging any panic.
func (b *Bus) safeCall(topic Topic, fn func(Topic)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"topic", string(topic),
				"panic", r,
			)
		}
	}()
	fn(topic)
}

// SubscriberCount returns the number of subscribers for a topic.
// Useful for tests and monitoring.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
