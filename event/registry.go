package event

import "sync"

// Broadcaster receives topic-tagged emissions. It is satisfied by
// stream.Hub; the event package never blocks on it, so implementations must
// not block either.
type Broadcaster interface {
	Broadcast(topic, sender string, payload any)
}

type eventKey struct {
	namespace string
	name      string
}

// Registry owns the process's named events and the worker pool that runs
// background handlers. Construct one per process (or use the package-level
// default) and pass it by handle; events are created lazily and never
// destroyed.
type Registry struct {
	mu     sync.RWMutex
	events map[eventKey]*Event
	hub    Broadcaster
	pool   *workerPool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBroadcaster routes topic-tagged emissions to b.
func WithBroadcaster(b Broadcaster) RegistryOption {
	return func(r *Registry) { r.hub = b }
}

// WithMaxWorkers caps concurrent background handlers. Default is 512.
func WithMaxWorkers(n int) RegistryOption {
	return func(r *Registry) { r.pool.max = n }
}

// WithReservedWorkers reserves pool slots for EmitAsync so fire-and-forget
// handlers cannot starve awaited dispatch. Default is 10.
func WithReservedWorkers(n int) RegistryOption {
	return func(r *Registry) { r.pool.reserved = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		events: make(map[eventKey]*Event),
		pool:   &workerPool{max: DefaultMaxWorkers, reserved: DefaultReservedWorkers},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool.init()
	return r
}

// Event returns the event with the given name in the default namespace,
// creating it on first use.
func (r *Registry) Event(name string) *Event {
	return r.EventIn(DefaultNamespace, name)
}

// EventIn returns the event identified by (namespace, name), creating it on
// first use. Concurrent calls for the same identity resolve to one winner.
func (r *Registry) EventIn(namespace, name string) *Event {
	key := eventKey{namespace: namespace, name: name}

	r.mu.RLock()
	ev, ok := r.events[key]
	r.mu.RUnlock()
	if ok {
		return ev
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[key]; ok {
		return ev
	}
	ev = &Event{namespace: namespace, name: name, reg: r}
	r.events[key] = ev
	return ev
}

// SetBroadcaster wires (or replaces) the broadcast target. Passing nil
// disables topic routing.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = b
}

func (r *Registry) broadcaster() Broadcaster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hub
}

// Wait blocks until every background handler spawned so far has finished.
func (r *Registry) Wait() {
	r.pool.wait()
}

// Reset drops all events and their handler tables. For testing only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[eventKey]*Event)
}

// std is the process-wide default registry used by the package-level
// helpers below.
var std = NewRegistry()

// Named returns the named event from the default registry, creating it on
// first use.
func Named(name string) *Event { return std.Event(name) }

// NamedIn is Named with an explicit namespace.
func NamedIn(namespace, name string) *Event { return std.EventIn(namespace, name) }

// Default returns the process-wide default registry.
func Default() *Registry { return std }

// Reset clears the default registry. For testing only.
func Reset() { std.Reset() }
