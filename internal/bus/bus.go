package bus

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// A subscriber that falls this far behind starts losing events instead
// of stalling publishers.
const subscriberBufferSize = 64

// Bus is an in-memory named-channel publish/subscribe primitive. Targets
// are plain strings; the bus carries no domain knowledge beyond the
// envelope shape. Delivery is best-effort: subscribers present at publish
// time receive envelopes in publish order, late subscribers get no history.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan event.Envelope // target -> subID -> ch
	closed      bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]map[string]chan event.Envelope),
	}
}

// Subscribe registers a subscriber for envelopes published to target.
// Returns the live feed channel and a subscription id for Unsubscribe.
// The subscription is released automatically when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, target string) (<-chan event.Envelope, string) {
	subID := uuid.New().String()
	ch := make(chan event.Envelope, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[target]; !ok {
		b.subscribers[target] = make(map[string]chan event.Envelope)
	}
	b.subscribers[target][subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(target, subID)
	}()

	return ch, subID
}

// Publish delivers env to every current subscriber of target, in order.
// It never blocks on a slow or absent subscriber: when a subscriber's
// buffer is full the envelope is dropped for that subscriber only.
func (b *Bus) Publish(target string, env event.Envelope) {
	// Sends are non-blocking, so holding the read lock for the whole
	// fan-out is cheap and keeps Unsubscribe from closing a channel
	// mid-publish.
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs, ok := b.subscribers[target]
	if !ok || len(subs) == 0 {
		return
	}

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
			log.Printf("bus: dropped %s event for slow subscriber on %s", env.Type, target)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Calling it
// for an unknown target or id is a no-op.
func (b *Bus) Unsubscribe(target, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[target]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, target)
	}
}

// Close shuts down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for target, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, target)
	}
}

// Publisher is the interface held by components that only emit events,
// so they do not depend on the concrete bus.
type Publisher interface {
	Publish(target string, env event.Envelope)
}
