package events

import (
	"context"
	"sync"
)

// SubscriptionHandler pairs an event topic with the handler invoked for
// every event published on it.
type SubscriptionHandler struct {
	Topic   string
	Handler func(ctx context.Context, message Publishable)
}

// Dispatcher fans published events out to in-process subscription handlers
// and then forwards them to the underlying publisher. Handlers run
// synchronously on the publishing goroutine, so they must not block the
// operation that emitted the event.
type Dispatcher struct {
	publisher Publisher

	mu          sync.RWMutex
	subscribers map[string][]SubscriptionHandler
}

func NewDispatcher(publisher Publisher) *Dispatcher {
	return &Dispatcher{
		publisher:   publisher,
		subscribers: map[string][]SubscriptionHandler{},
	}
}

func (d *Dispatcher) Subscribe(handler SubscriptionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[handler.Topic] = append(d.subscribers[handler.Topic], handler)
}

func (d *Dispatcher) Publish(ctx context.Context, message Publishable) {
	d.mu.RLock()
	handlers := d.subscribers[message.GetEventTopicName()]
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler.Handler(ctx, message)
	}
	d.publisher.Publish(ctx, message)
}
