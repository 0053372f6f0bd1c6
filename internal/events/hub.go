package events

import (
	"log/slog"
	"sync"
)

// DefaultMailboxSize is the number of undelivered events a subscriber may buffer
const DefaultMailboxSize = 16

// Publisher is implemented by anything that accepts change events
type Publisher interface {
	Publish(ev Event) int
}

// Hub is a broadcast point with one bounded mailbox per subscriber.
// Sends and closes happen under the same lock so a pruned mailbox is never written to.
type Hub struct {
	mu          sync.Mutex
	subs        map[uint64]*Subscription
	nextID      uint64
	mailboxSize int
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithMailboxSize overrides DefaultMailboxSize
func WithMailboxSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.mailboxSize = n
		}
	}
}

// NewHub creates an empty Hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:        make(map[uint64]*Subscription),
		mailboxSize: DefaultMailboxSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one subscriber's mailbox
type Subscription struct {
	id     uint64
	ch     chan Event
	hub    *Hub
	closed bool
}

// Events returns the mailbox. It is closed when the subscription is closed or pruned.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Subscribe registers a subscriber. The mailbox already holds a connected event.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:  h.nextID,
		ch:  make(chan Event, h.mailboxSize),
		hub: h,
	}
	sub.ch <- Connected()
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every subscriber without blocking and returns the number
// of mailboxes it reached. Subscribers whose mailbox is full are pruned.
func (h *Hub) Publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			slog.Warn("Dropping slow event subscriber", "subscriber", sub.id, "event", ev.Type)
			h.removeLocked(sub)
		}
	}
	return delivered
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub.id)
	close(sub.ch)
}
