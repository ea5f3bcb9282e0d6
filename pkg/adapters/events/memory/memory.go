package memory

import (
	"context"
	"sync"

	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// subscription binds a handler to the ctx it was registered under. Once
// the ctx is cancelled the subscription is dead and gets pruned on the
// next Publish to its topic.
type subscription struct {
	ctx     context.Context
	handler ports.EventHandler
}

// EventBus implements ports.EventBus with in-process handlers.
type EventBus struct {
	subscribers map[string][]subscription
	mu          sync.RWMutex
}

// NewEventBus creates a new in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
	}
}

// Publish delivers an event to all live subscribers of a topic. Handlers
// run synchronously in subscription order; a handler error does not stop
// delivery to later handlers. Subscriptions whose ctx is done are
// dropped instead of invoked.
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.Lock()
	subs := e.subscribers[topic]
	live := subs[:0]
	for _, sub := range subs {
		if sub.ctx.Err() == nil {
			live = append(live, sub)
		}
	}
	e.subscribers[topic] = live
	handlers := make([]ports.EventHandler, len(live))
	for i, sub := range live {
		handlers[i] = sub.handler
	}
	e.mu.Unlock()

	for _, handler := range handlers {
		// Handler errors are the subscriber's concern, not the publisher's.
		_ = handler(ctx, event)
	}

	return nil
}

// Subscribe registers a handler for events on a topic. The subscription
// lives until ctx is cancelled or the bus is closed.
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers[topic] = append(e.subscribers[topic], subscription{ctx: ctx, handler: handler})
	return nil
}

// Close drops all subscriptions.
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string][]subscription)
	return nil
}
