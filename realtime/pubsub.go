// Package realtime bridges server push events into cache invalidation and an
// internal publish/subscribe bus the UI layer consumes.
package realtime

import (
	"encoding/json"
	"sync"
)

// EventType identifies the push events the bridge understands, plus internal
// application signals published on the same bus.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventBulk    EventType = "bulk-operation"

	// EventAuthRequired is the application-wide signal emitted when a token
	// refresh fails; it is not a server push event.
	EventAuthRequired EventType = "auth.required"
)

// Event is one typed push message. Entity names the affected collection
// (e.g. "members"); ID is set for single-record events.
type Event struct {
	Type    EventType       `json:"type"`
	Entity  string          `json:"entity,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler consumes one event. Handlers run sequentially per publish, in
// subscription order.
type Handler func(Event)

// PubSub is the internal event bus. The realtime bridge is the sole
// publisher; UI consumers subscribe and receive an unsubscribe func so a
// logical subscription is never registered more than once.
type PubSub struct {
	mu     sync.Mutex
	subs   map[EventType]map[int]Handler
	order  map[EventType][]int
	nextID int
}

// NewPubSub creates an empty bus.
func NewPubSub() *PubSub {
	return &PubSub{
		subs:  map[EventType]map[int]Handler{},
		order: map[EventType][]int{},
	}
}

// Subscribe registers a handler for the given event type and returns the
// token that removes exactly this registration. Calling the token twice is a
// no-op.
func (p *PubSub) Subscribe(t EventType, h Handler) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	if p.subs[t] == nil {
		p.subs[t] = map[int]Handler{}
	}
	p.subs[t][id] = h
	p.order[t] = append(p.order[t], id)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs[t], id)
			ids := p.order[t]
			for i, v := range ids {
				if v == id {
					p.order[t] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers the event to every subscriber of its type.
func (p *PubSub) Publish(e Event) {
	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.order[e.Type]))
	for _, id := range p.order[e.Type] {
		if h, ok := p.subs[e.Type][id]; ok {
			handlers = append(handlers, h)
		}
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

// SubscriberCount reports live registrations for an event type.
func (p *PubSub) SubscriberCount(t EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[t])
}
