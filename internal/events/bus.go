// Package events provides a small in-process event bus used to notify the
// surrounding application shell of background activity: balance refreshes
// after the first successful rate fetch, offline deferrals, and synthetic
// sync-success events after schedule advancement posts transactions.
package events

import (
	"log"
	"sync"
	"time"
)

// Type identifies an event on the bus.
type Type string

const (
	// BalanceRefresh asks query layers to recompute converted balances.
	// Emitted once, after the first rate-fetch cycle that cached a rate.
	BalanceRefresh Type = "balance-refresh"

	// SyncSuccess mimics an external sync completion so downstream caches
	// invalidate. Data is a SyncEvent naming the affected tables.
	SyncSuccess Type = "sync-success"

	// Offline signals that schedule advancement deferred posting because the
	// last sync did not succeed.
	Offline Type = "schedule-offline"
)

// SyncEvent is the payload for SyncSuccess.
type SyncEvent struct {
	Tables []string
}

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      Type
	Timestamp time.Time
	Data      any
}

type handler func(Event)

// Bus is a concurrency-safe synchronous dispatcher. Handlers run sequentially
// during Publish, on the publisher's goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type]map[uint64]handler
	nextID      uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Type]map[uint64]handler),
	}
}

// Subscribe registers a handler for the given event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, h func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID

	if b.subscribers[t] == nil {
		b.subscribers[t] = make(map[uint64]handler)
	}
	b.subscribers[t][id] = handler(h)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if handlers := b.subscribers[t]; handlers != nil {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subscribers, t)
			}
		}
	}
}

// Publish delivers the event to all subscribers of its type. A panicking
// handler is recovered and logged so one subscriber cannot take down the
// publishing background loop.
func (b *Bus) Publish(t Type, data any) {
	b.mu.RLock()
	handlers := make([]handler, 0, len(b.subscribers[t]))
	for _, h := range b.subscribers[t] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	ev := Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("event handler for %s panicked: %v", t, r)
				}
			}()
			h(ev)
		}()
	}
}
