package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Sentinel errors.
var (
	// ErrHandlerPanic marks a result slot whose handler panicked.
	ErrHandlerPanic = errors.New("event: handler panicked")
	// ErrCancelled marks an EmitAsync result slot whose handler was stopped
	// by an earlier handler returning false.
	ErrCancelled = errors.New("event: dispatch cancelled")
)

// EmitOption configures one emission.
type EmitOption func(*Emission)

// WithTopic tags the emission with a broadcast topic. The registry's
// Broadcaster (if any) routes the payload to matching consumers in addition
// to local handler dispatch.
func WithTopic(topic string) EmitOption {
	return func(em *Emission) { em.Topic = topic }
}

// Emit fires the event synchronously and returns the collected results of
// the synchronous handlers, in invocation order.
//
// Handlers run in descending priority, FIFO within equal priority. A
// handler whose sender filter excludes sender, or whose condition returns
// false, is skipped. Synchronous handlers run inline; multi-result handlers
// are drained eagerly, each value appended to the results. Asynchronous
// handlers are scheduled on the worker pool and not awaited; their results
// are not part of the return value.
//
// A synchronous handler value that is exactly the boolean false cancels the
// emission: it is the last result appended and no further handler of any
// kind runs. A handler error or panic occupies that handler's result slot
// and dispatch continues.
//
// Emit never suspends the caller.
func (e *Event) Emit(ctx context.Context, sender string, payload any, opts ...EmitOption) Results {
	em := &Emission{Event: e, Sender: sender, Payload: payload}
	for _, opt := range opts {
		opt(em)
	}
	e.routeTopic(em)

	var results Results
	for _, b := range e.snapshot() {
		if b.removed.Load() || !b.allows(sender) {
			continue
		}
		if !b.ready(em) {
			continue
		}

		if b.handler.background() {
			h := b.handler
			e.reg.pool.spawn(func() {
				_, _ = runHandler(context.WithoutCancel(ctx), em, h)
			})
			continue
		}

		vals, err := runHandler(ctx, em, b.handler)
		if err != nil {
			results = append(results, Result{Err: err})
			continue
		}
		cancelled := false
		for _, v := range vals {
			results = append(results, Result{Data: v})
			if isFalse(v) {
				cancelled = true
				break
			}
		}
		if cancelled {
			break
		}
	}
	return results
}

// EmitAsync fires the event with every handler, synchronous or not,
// started as a concurrent task, and blocks until all of them complete (or
// ctx is done while waiting for pool slots). Ordering, sender-filter and
// condition rules are the same as Emit; the returned results keep each
// handler's outcome at its registration-order position. Multi-result
// handlers contribute their value list as a single slot.
//
// Cancellation on a literal false is best-effort here: tasks already
// running are not interrupted, only handlers that have not started yet are
// stopped, and their slots carry ErrCancelled. This asymmetry with Emit is
// deliberate.
func (e *Event) EmitAsync(ctx context.Context, sender string, payload any, opts ...EmitOption) Results {
	em := &Emission{Event: e, Sender: sender, Payload: payload}
	for _, opt := range opts {
		opt(em)
	}
	e.routeTopic(em)

	var run []*binding
	for _, b := range e.snapshot() {
		if b.removed.Load() || !b.allows(sender) {
			continue
		}
		if b.ready(em) {
			run = append(run, b)
		}
	}

	results := make(Results, len(run))
	var cancelled atomic.Bool
	var wg sync.WaitGroup

	for i, b := range run {
		i, h := i, b.handler
		wg.Add(1)
		err := e.reg.pool.submit(ctx, func() {
			defer wg.Done()
			if cancelled.Load() {
				results[i] = Result{Err: ErrCancelled}
				return
			}
			vals, err := runHandler(ctx, em, h)
			if err != nil {
				results[i] = Result{Err: err}
				return
			}
			results[i] = asyncResult(h, vals)
			for _, v := range vals {
				if isFalse(v) {
					cancelled.Store(true)
					break
				}
			}
		})
		if err != nil {
			wg.Done()
			results[i] = Result{Err: err}
		}
	}

	wg.Wait()
	return results
}

// routeTopic hands a topic-tagged emission to the registry's broadcaster.
// Broadcast happens before handler dispatch, so cancellation never
// suppresses it.
func (e *Event) routeTopic(em *Emission) {
	if em.Topic == "" {
		return
	}
	if hub := e.reg.broadcaster(); hub != nil {
		hub.Broadcast(em.Topic, em.Sender, em.Payload)
	}
}

// asyncResult shapes one EmitAsync slot: single kinds carry their value,
// multi kinds carry the drained value list.
func asyncResult(h Handler, vals []any) Result {
	switch h.Kind() {
	case KindSyncMulti, KindAsyncMulti:
		return Result{Data: vals}
	default:
		if len(vals) == 1 {
			return Result{Data: vals[0]}
		}
		return Result{}
	}
}

// isFalse reports whether v is exactly the boolean false, the cancellation
// signal. Falsy-but-not-false values (nil, 0, "") do not cancel.
func isFalse(v any) bool {
	b, ok := v.(bool)
	return ok && !b
}
