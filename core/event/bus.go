// Package event is the in-process bus carrying task lifecycle facts to their consumers.
// Delivery is synchronous and best effort: handler failures are logged and never reach the publisher.
package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/trezcool/cohort/core"
)

// Event is a published fact. Kind selects the subscribers.
type Event interface {
	Kind() string
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	name    string
	handler Handler
}

type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // kind -> subscriptions
	logger        core.Logger
}

func NewBus(logger core.Logger) *Bus {
	return &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logger,
	}
}

// Subscribe registers handler for kind. name identifies the subscriber in logs.
func (b *Bus) Subscribe(kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[kind] = append(b.subscriptions[kind], subscription{name: name, handler: handler})
}

// Publish calls every handler of e.Kind() in registration order.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscriptions[e.Kind()]))
	copy(subs, b.subscriptions[e.Kind()])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.safeCall(ctx, sub, e); err != nil {
			b.logger.Error(fmt.Sprintf("event handler %s failed on %s", sub.name, e.Kind()), err)
		}
	}
}

func (b *Bus) safeCall(ctx context.Context, sub subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return sub.handler(ctx, e)
}

func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
