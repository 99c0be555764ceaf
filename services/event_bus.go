package services

import (
	"context"
	"sync"
	"time"
)

// Event is a party-state-change notification fanned out to every server
// process. The store stays authoritative; events are best-effort signals.
type Event struct {
	Type      string                 `json:"type"`
	PartyID   string                 `json:"partyId"`
	UserID    string                 `json:"userId,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, partyID, userID string, payload map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		PartyID:   partyID,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Bus is the abstract publish/subscribe fan-out. RedisBus is the
// cross-process implementation; MemoryBus serves tests and single-node runs.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers a handler for every published event and returns
	// an unsubscribe function.
	Subscribe(handler func(Event)) func()
}

// MemoryBus dispatches events synchronously inside one process.
type MemoryBus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Event)
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: map[int]func(Event){}}
}

// Publish delivers the event to every subscriber before returning.
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers a handler and returns its unsubscribe function.
func (b *MemoryBus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}
