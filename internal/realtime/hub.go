package realtime

import (
	"sync"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/observability"
)

// EventType distinguishes change-feed deliveries.
type EventType string

const (
	// EventInsert carries a newly appended message.
	EventInsert EventType = "INSERT"
	// EventResync tells the consumer it missed events and must re-fetch.
	EventResync EventType = "RESYNC"
)

// Event is one delivery on a Subscription.
type Event struct {
	Type    EventType      `json:"type"`
	Message domain.Message `json:"message"`
}

// Filter selects which inserts a subscriber receives. An empty UserID matches every thread.
type Filter struct {
	UserID string
}

// Matches reports whether msg belongs to the filtered thread.
func (f Filter) Matches(msg domain.Message) bool {
	return f.UserID == "" || f.UserID == msg.UserID
}

const defaultBuffer = 64

// Hub fans inserted messages out to in-process subscribers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	metrics *observability.Metrics
}

// NewHub builds a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[uint64]*Subscription), buffer: buffer, metrics: metrics}
}

// Subscribe registers a new subscription. The caller owns it and must Close it.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		hub:    h,
		id:     h.nextID,
		filter: filter,
		events: make(chan Event, h.buffer),
	}
	h.subs[sub.id] = sub
	h.metrics.SubscriptionOpened()
	return sub
}

// Publish delivers msg to every matching subscriber without blocking.
func (h *Hub) Publish(msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.filter.Matches(msg) {
			sub.deliver(Event{Type: EventInsert, Message: msg})
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every open subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		h.metrics.SubscriptionClosed()
	}
}

// Subscription is an explicit handle on the change feed.
type Subscription struct {
	hub    *Hub
	id     uint64
	filter Filter
	events chan Event

	mu     sync.Mutex
	closed bool
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Filter returns the filter the subscription was opened with.
func (s *Subscription) Filter() Filter {
	return s.filter
}

// Close stops delivery and releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.hub.remove(s.id)
}

// deliver never blocks. When the buffer is full the pending events are
// discarded and replaced by a single resync marker.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- ev:
		return
	default:
	}

	for drained := false; !drained; {
		select {
		case <-s.events:
		default:
			drained = true
		}
	}
	s.events <- Event{Type: EventResync}
	s.hub.metrics.SubscriberResynced()
}
