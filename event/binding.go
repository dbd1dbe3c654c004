package event

import (
	"runtime"
	"sync/atomic"
)

// Condition is a per-emission predicate. A handler whose condition returns
// false is skipped for that emission; dispatch continues with the next
// handler.
type Condition func(em *Emission) bool

// binding is one registered handler inside an event's handler table.
// Registration-order ties within one priority are preserved positionally by
// the table's insertion sort.
type binding struct {
	handler  Handler
	priority int
	senders  map[string]struct{} // nil means any sender
	cond     Condition
	removed  atomic.Bool
}

func (b *binding) allows(sender string) bool {
	if b.senders == nil {
		return true
	}
	_, ok := b.senders[sender]
	return ok
}

func (b *binding) ready(em *Emission) bool {
	return b.cond == nil || b.cond(em)
}

// Binding is the registration handle returned by On. Remove is idempotent:
// removing twice, or removing a binding whose owner has already been
// collected, is a no-op.
type Binding struct {
	ev *Event
	b  *binding
}

// Remove unregisters the handler. Safe to call any number of times.
func (bd *Binding) Remove() {
	if bd == nil || bd.b == nil {
		return
	}
	if bd.b.removed.CompareAndSwap(false, true) {
		bd.ev.drop(bd.b)
	}
}

// Removed reports whether the binding has been unregistered.
func (bd *Binding) Removed() bool {
	return bd == nil || bd.b == nil || bd.b.removed.Load()
}

// bindConfig collects BindOption values before the binding is built.
type bindConfig struct {
	priority int
	senders  []string
	cond     Condition
	owner    any
}

// BindOption configures a handler registration.
type BindOption func(*bindConfig)

// WithPriority sets the handler priority. Higher priorities run first;
// handlers with equal priority run in registration order. Default is 0.
func WithPriority(p int) BindOption {
	return func(c *bindConfig) { c.priority = p }
}

// WithSenders restricts the handler to emissions from the given senders.
// Default is any sender.
func WithSenders(senders ...string) BindOption {
	return func(c *bindConfig) { c.senders = append(c.senders, senders...) }
}

// WithCondition sets a per-emission predicate. Default is always true.
func WithCondition(cond Condition) BindOption {
	return func(c *bindConfig) { c.cond = cond }
}

// Tied binds the registration's lifetime to owner, which must be a pointer
// value: once owner becomes unreachable the binding is removed at the next
// garbage collection. This is eventual, not immediate. The handler callable
// must not capture owner, or owner never becomes unreachable.
func Tied(owner any) BindOption {
	return func(c *bindConfig) { c.owner = owner }
}

// tie arms the owner finalizer for a Tied binding.
func tie(owner any, bd *Binding) {
	// The finalizer captures only the handle, never the owner.
	runtime.SetFinalizer(owner, func(any) { bd.Remove() })
}
