// Package cachestatus broadcasts "this subtitle is now cached" events to
// interested listeners such as the userscript's server-sent event stream.
//
// Delivery is best effort: Notify never blocks, and a subscriber whose buffer
// is full misses the event.
package cachestatus

import (
	"sync"
	"time"
)

// Event reports that a subtitle id was written to or removed from the cache.
type Event struct {
	Sequence  uint64    `json:"seq"`
	ID        string    `json:"id"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"ts"`
}

// Hub fans cache-status events out to subscribers.
type Hub struct {
	mu      sync.Mutex
	nextSeq uint64
	nextSub uint64
	subs    map[uint64]chan Event
	dropped uint64
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Notify broadcasts that id is now cached.
func (h *Hub) Notify(id string) {
	h.publish(id, true)
}

// NotifyRemoved broadcasts that id left the cache.
func (h *Hub) NotifyRemoved(id string) {
	h.publish(id, false)
}

func (h *Hub) publish(id string, cached bool) {
	if h == nil || id == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt := Event{Sequence: h.nextSeq, ID: id, Cached: cached, Timestamp: time.Now().UTC()}
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a listener with the given channel buffer. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	if h == nil {
		close(ch)
		return ch, func() {}
	}
	h.mu.Lock()
	h.nextSub++
	key := h.nextSub
	h.subs[key] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, key)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of active listeners.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
