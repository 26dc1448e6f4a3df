// Package events is the in-process channel that carries draft lifecycle
// notifications from the orchestrator to any number of observers.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

var busLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	busLogger = l
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	kind Kind
	id   uint64
}

type listener struct {
	id      uint64
	handler Handler
}

// Bus is a typed, synchronous publish/subscribe channel. There is no
// buffering: a handler registered after an event was published never sees it.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Kind][]listener
	nextID    uint64
}

func NewBus() *Bus {
	return &Bus{
		listeners: make(map[Kind][]listener),
	}
}

// Subscribe registers h for events of the given kind.
func (b *Bus) Subscribe(kind Kind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[kind] = append(b.listeners[kind], listener{id: b.nextID, handler: h})

	busLogger.Debug().Str("kind", string(kind)).Uint64("subscription", b.nextID).Msg("Subscribed")
	return Subscription{kind: kind, id: b.nextID}
}

// SubscribeAll registers h for every kind and returns a function removing
// all of those registrations.
func (b *Bus) SubscribeAll(h Handler) func() {
	subs := make([]Subscription, 0, len(Kinds))
	for _, k := range Kinds {
		subs = append(subs, b.Subscribe(k, h))
	}
	return func() {
		for _, s := range subs {
			b.Unsubscribe(s)
		}
	}
}

// Unsubscribe removes a registration. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	listeners := b.listeners[s.kind]
	for i, l := range listeners {
		if l.id != s.id {
			continue
		}
		// Keep registration order for the remaining handlers.
		b.listeners[s.kind] = append(listeners[:i:i], listeners[i+1:]...)
		busLogger.Debug().Str("kind", string(s.kind)).Uint64("subscription", s.id).Msg("Unsubscribed")
		return
	}
}

// Publish delivers e to the handlers registered for its kind, in registration
// order. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	listeners := make([]listener, len(b.listeners[e.Kind()]))
	copy(listeners, b.listeners[e.Kind()])
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			busLogger.Error().
				Interface("panic", r).
				Str("kind", string(e.Kind())).
				Str("draft_key", e.DraftKey()).
				Msg("Event handler panicked")
		}
	}()
	l.handler(e)
}

// Len returns the number of handlers registered for kind.
func (b *Bus) Len(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}
