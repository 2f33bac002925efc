package hub

import (
	"sync"
	"sync/atomic"

	"rayview/internal/core/model"
	"rayview/internal/util"
)

// DefaultDepth is the per-subscriber buffer depth used when a
// subscriber does not ask for one.
const DefaultDepth = 64

// Event is one committed-entry notification. Missed counts the
// notifications dropped for this subscriber before this one was
// delivered, so a lagging consumer sees evidence of loss instead of
// silence.
type Event struct {
	Entry  model.TimelineEntry
	Missed uint64
}

// Subscription is a live, restartable feed of committed entries.
type Subscription struct {
	name   string
	ch     chan Event
	missed atomic.Uint64
	hub    *Hub
	once   sync.Once
}

// C returns the delivery channel. It is closed on Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Name returns the subscriber name given at Subscribe time.
func (s *Subscription) Name() string {
	return s.name
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

// Hub fans committed-entry notifications out to subscribers. Publish
// never blocks: each subscriber has a bounded buffer and overflow
// drops the oldest buffered notification, counting it.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe attaches a named subscriber with the given buffer depth.
func (h *Hub) Subscribe(name string, depth int) *Subscription {
	if depth <= 0 {
		depth = DefaultDepth
	}
	sub := &Subscription{
		name: name,
		ch:   make(chan Event, depth),
		hub:  h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers one committed entry to every subscriber. Delivery
// matches commit order per subscriber; a full buffer sheds its oldest
// notification rather than stalling the publisher.
func (h *Hub) Publish(entry model.TimelineEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		pending := sub.missed.Swap(0)
		ev := Event{Entry: entry, Missed: pending}

		select {
		case sub.ch <- ev:
			continue
		default:
		}

		// Buffer full: shed the oldest buffered notification and carry
		// its missed count forward.
		select {
		case old := <-sub.ch:
			ev.Missed += old.Missed + 1
		default:
		}

		select {
		case sub.ch <- ev:
		default:
			// The subscriber raced the refill; record everything this
			// event carried plus the event itself.
			sub.missed.Add(ev.Missed + 1)
			util.LogDebugf("hub: dropped notification for subscriber %s", sub.name)
		}
	}
}
