package stream

import (
	"sync"
	"sync/atomic"
)

// Hub is the consumer registry and broadcast router. Construct one per
// process and pass it by handle; there is deliberately no package-level
// hub. A Hub satisfies event.Broadcaster, so wiring it into an event
// registry routes every topic-tagged emission here.
type Hub struct {
	mu        sync.RWMutex
	consumers map[string]*Consumer

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{consumers: make(map[string]*Consumer)}
}

// Broadcast routes one payload to every connected consumer whose
// subscriptions match topic and sender and whose mute set does not.
// Delivery to each consumer is independent and non-blocking; enumeration
// order across consumers is unspecified.
func (h *Hub) Broadcast(topic, sender string, payload any) {
	h.mu.RLock()
	consumers := make([]*Consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		consumers = append(consumers, c)
	}
	h.mu.RUnlock()

	for _, c := range consumers {
		if !c.wants(topic, sender) {
			continue
		}
		if c.Deliver(topic, sender, payload) {
			h.delivered.Add(1)
		} else {
			// Lost the race with Disconnect.
			h.dropped.Add(1)
		}
	}
}

// register adds c under its identity. A consumer reconnecting under an id
// that is still registered replaces the old entry.
func (h *Hub) register(c *Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumers[c.id] = c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.consumers, id)
}

// Get returns the connected consumer registered under id.
func (h *Hub) Get(id string) (*Consumer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.consumers[id]
	return c, ok
}

// Count returns the number of connected consumers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.consumers)
}

// Stats is a snapshot of the hub's routing counters.
type Stats struct {
	Consumers int
	Delivered uint64
	Dropped   uint64
}

// Stats returns current routing counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Consumers: h.Count(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
