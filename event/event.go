// Package event implements an in-process event bus: named events owned by a
// registry, handler registration with priority, sender-filter, condition and
// lifetime semantics, and synchronous / asynchronous emission with mixed
// handler kinds. Emissions tagged with a topic are additionally routed to a
// Broadcaster (see the stream package).
package event

import (
	"sort"
	"sync"
)

// DefaultNamespace is the namespace used by Registry.Event and Named.
const DefaultNamespace = "default"

// Event is a named dispatch point. Events are created lazily by the
// registry, are identified by (namespace, name), and live for the process
// lifetime. All methods are safe for concurrent use.
type Event struct {
	namespace string
	name      string
	reg       *Registry

	mu       sync.RWMutex
	bindings []*binding // ordered by priority desc, then registration order
}

// Name returns the event name.
func (e *Event) Name() string { return e.name }

// Namespace returns the event namespace.
func (e *Event) Namespace() string { return e.namespace }

// String returns "namespace:name".
func (e *Event) String() string { return e.namespace + ":" + e.name }

// On registers a handler and returns its removal handle.
// Registering an invalid handler (zero Handler, nil callable) panics: it is
// a programming error, not a runtime condition.
func (e *Event) On(h Handler, opts ...BindOption) *Binding {
	if !h.valid() {
		panic("event: On requires a handler built with Sync/Async/SyncMulti/AsyncMulti")
	}

	cfg := bindConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &binding{
		handler:  h,
		priority: cfg.priority,
		cond:     cfg.cond,
	}
	if len(cfg.senders) > 0 {
		b.senders = make(map[string]struct{}, len(cfg.senders))
		for _, s := range cfg.senders {
			b.senders[s] = struct{}{}
		}
	}

	e.mu.Lock()
	// Insert after every binding with priority >= b.priority so that equal
	// priorities keep FIFO order.
	i := sort.Search(len(e.bindings), func(i int) bool {
		return e.bindings[i].priority < b.priority
	})
	e.bindings = append(e.bindings, nil)
	copy(e.bindings[i+1:], e.bindings[i:])
	e.bindings[i] = b
	e.mu.Unlock()

	bd := &Binding{ev: e, b: b}
	if cfg.owner != nil {
		tie(cfg.owner, bd)
	}
	return bd
}

// OnFunc registers fn as an inline single-result handler.
func (e *Event) OnFunc(fn Func, opts ...BindOption) *Binding {
	return e.On(Sync(fn), opts...)
}

// drop removes b from the table. Dispatch snapshots taken before drop may
// still see b; they skip it via the removed flag.
func (e *Event) drop(b *binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.bindings {
		if cur == b {
			e.bindings = append(e.bindings[:i], e.bindings[i+1:]...)
			return
		}
	}
}

// snapshot copies the ordered handler table for one dispatch call.
func (e *Event) snapshot() []*binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*binding, len(e.bindings))
	copy(out, e.bindings)
	return out
}

// HandlerCount returns the number of registered handlers.
func (e *Event) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bindings)
}
