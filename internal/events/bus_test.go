package events_test

import (
	"sync"
	"testing"

	"github.com/avisser/budget-engine/internal/events"
)

// TestBus_PublishSubscribe tests event delivery and handler isolation.
//
// WHY: Background loops publish through the bus; a handler that panics or a
// stale subscription must never break delivery to the remaining subscribers.
func TestBus_PublishSubscribe(t *testing.T) {
	t.Run("delivers only to subscribers of the published type", func(t *testing.T) {
		// Setup
		bus := events.NewBus()
		var offline, synced []events.Event
		bus.Subscribe(events.Offline, func(e events.Event) { offline = append(offline, e) })
		bus.Subscribe(events.SyncSuccess, func(e events.Event) { synced = append(synced, e) })

		// Execute
		bus.Publish(events.Offline, nil)
		bus.Publish(events.SyncSuccess, events.SyncEvent{Tables: []string{"transactions"}})

		// Assert
		if len(offline) != 1 {
			t.Fatalf("Expected 1 offline event, got %d", len(offline))
		}
		if offline[0].Type != events.Offline {
			t.Errorf("Expected type %s, got %s", events.Offline, offline[0].Type)
		}
		if offline[0].Timestamp.IsZero() {
			t.Error("Expected a stamped event")
		}
		if len(synced) != 1 {
			t.Fatalf("Expected 1 sync event, got %d", len(synced))
		}
		payload, ok := synced[0].Data.(events.SyncEvent)
		if !ok || len(payload.Tables) != 1 || payload.Tables[0] != "transactions" {
			t.Errorf("Expected transactions sync payload, got %v", synced[0].Data)
		}
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		// Setup
		bus := events.NewBus()
		var count int
		unsubscribe := bus.Subscribe(events.BalanceRefresh, func(events.Event) { count++ })

		// Execute
		bus.Publish(events.BalanceRefresh, nil)
		unsubscribe()
		bus.Publish(events.BalanceRefresh, nil)

		// Assert
		if count != 1 {
			t.Errorf("Expected 1 delivery, got %d", count)
		}
	})

	t.Run("a panicking handler does not block others", func(t *testing.T) {
		// Setup
		bus := events.NewBus()
		var delivered bool
		bus.Subscribe(events.Offline, func(events.Event) { panic("handler bug") })
		bus.Subscribe(events.Offline, func(events.Event) { delivered = true })

		// Execute
		bus.Publish(events.Offline, nil)

		// Assert
		if !delivered {
			t.Error("Expected the second handler to run despite the panic")
		}
	})

	t.Run("concurrent publishers are safe", func(t *testing.T) {
		// Setup
		bus := events.NewBus()
		var mu sync.Mutex
		var count int
		bus.Subscribe(events.SyncSuccess, func(events.Event) {
			mu.Lock()
			count++
			mu.Unlock()
		})

		// Execute
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bus.Publish(events.SyncSuccess, nil)
			}()
		}
		wg.Wait()

		// Assert
		if count != 10 {
			t.Errorf("Expected 10 deliveries, got %d", count)
		}
	})
}
