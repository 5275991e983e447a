package service

import "sync"

// Event represents a layer mutation or a session change.
type Event struct {
	Resource string `json:"resource"` // "layers" or "sessions"
	Action   string `json:"action"`   // "created", "updated", "deleted", "changed"
	ID       string `json:"id"`
	Data     any    `json:"data,omitempty"`
}

// Filter selects the events a subscriber receives. A nil Filter accepts
// every event.
type Filter func(Event) bool

// ForResource accepts events of one resource, and of one ID when id is set.
func ForResource(resource, id string) Filter {
	return func(e Event) bool {
		return e.Resource == resource && (id == "" || e.ID == id)
	}
}

// EventBus is a fan-out pub/sub for change events. Slow subscribers miss
// events rather than block publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]Filter
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]Filter)}
}

// Publish sends an event to every matching subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, accept := range b.subs {
		if accept != nil && !accept(e) {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel receiving the events accepted by
// filter.
func (b *EventBus) Subscribe(filter Filter) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = filter
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
