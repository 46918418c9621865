package router

import "sync"

// Hub is the subscription registry for one connection instance. It is
// created with the Manager and torn down on disconnect; subscribers
// registered with no kinds receive every event.
type Hub struct {
	bufSize int

	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	closed bool
}

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	hub   *Hub
	id    int
	kinds map[EventKind]struct{} // empty = all kinds
	buf   *GrowableBuffer[Event]
}

// NewHub creates a hub whose subscriber buffers start at bufSize.
func NewHub(bufSize int) *Hub {
	if bufSize < 1 {
		bufSize = 16
	}
	return &Hub{
		bufSize: bufSize,
		subs:    make(map[int]*Subscription),
	}
}

// Subscribe registers a subscriber for the given event kinds (all kinds
// when none are given). Returns nil once the hub is closed.
func (h *Hub) Subscribe(kinds ...EventKind) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	set := make(map[EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	h.nextID++
	sub := &Subscription{
		hub:   h,
		id:    h.nextID,
		kinds: set,
		buf:   NewGrowableBuffer[Event](h.bufSize),
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers an event to every matching subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if len(sub.kinds) > 0 {
			if _, ok := sub.kinds[ev.Kind]; !ok {
				continue
			}
		}
		sub.buf.Send(ev)
	}
}

// Close tears down every subscription. Buffered events remain
// receivable by their subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		sub.buf.Close()
	}
	h.subs = make(map[int]*Subscription)
}

// Receive blocks for the next event. The second return is false once
// the subscription is torn down and drained.
func (s *Subscription) Receive() (Event, bool) {
	return s.buf.Receive()
}

// TryReceive returns the next buffered event without blocking.
func (s *Subscription) TryReceive() (Event, bool) {
	return s.buf.TryReceive()
}

// Cancel removes the subscription from its hub.
func (s *Subscription) Cancel() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
	s.buf.Close()
}
