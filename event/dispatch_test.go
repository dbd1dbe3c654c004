package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yaoapp/pulse/event"
)

// recorder collects handler invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.calls))
	copy(cp, r.calls)
	return cp
}

func record(rec *recorder, name string, value any) event.Func {
	return func(ctx context.Context, em *event.Emission) (any, error) {
		rec.add(name)
		return value, nil
	}
}

// --- Priority ordering ---

func TestEmit_PriorityOrder(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("order.test")
	rec := &recorder{}

	ev.OnFunc(record(rec, "low", "low"), event.WithPriority(1))
	ev.OnFunc(record(rec, "high", "high"), event.WithPriority(5))

	results := ev.Emit(context.Background(), "sys", nil)

	calls := rec.get()
	if len(calls) != 2 || calls[0] != "high" || calls[1] != "low" {
		t.Fatalf("expected [high low], got %v", calls)
	}
	if len(results) != 2 || results[0].Data != "high" || results[1].Data != "low" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestEmit_EqualPriorityFIFO(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("order.fifo")
	rec := &recorder{}

	for i := 0; i < 5; i++ {
		ev.OnFunc(record(rec, fmt.Sprintf("h%d", i), nil))
	}
	ev.Emit(context.Background(), "sys", nil)

	calls := rec.get()
	for i, name := range []string{"h0", "h1", "h2", "h3", "h4"} {
		if calls[i] != name {
			t.Fatalf("registration order not preserved: %v", calls)
		}
	}
}

// --- Condition and sender filter ---

func TestEmit_ConditionSkipsNotCancels(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("cond.test")
	rec := &recorder{}

	ev.OnFunc(record(rec, "skipped", "skipped"), event.WithPriority(10),
		event.WithCondition(func(em *event.Emission) bool { return false }))
	ev.OnFunc(record(rec, "ran", "ran"))

	results := ev.Emit(context.Background(), "sys", nil)

	calls := rec.get()
	if len(calls) != 1 || calls[0] != "ran" {
		t.Fatalf("expected only the unconditioned handler to run, got %v", calls)
	}
	if len(results) != 1 || results[0].Data != "ran" {
		t.Fatalf("skipped handler must not occupy a result slot: %+v", results)
	}
}

func TestEmit_ConditionSeesEmission(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("cond.emission")
	rec := &recorder{}

	ev.OnFunc(record(rec, "big", nil), event.WithCondition(func(em *event.Emission) bool {
		return em.PayloadInt() > 10
	}))

	ev.Emit(context.Background(), "sys", 5)
	ev.Emit(context.Background(), "sys", 50)

	if calls := rec.get(); len(calls) != 1 {
		t.Fatalf("condition should admit exactly one emission, got %v", calls)
	}
}

func TestEmit_SenderFilter(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("sender.test")
	rec := &recorder{}

	ev.OnFunc(record(rec, "u1only", nil), event.WithSenders("u1"))
	ev.OnFunc(record(rec, "any", nil))

	ev.Emit(context.Background(), "u2", nil)
	if calls := rec.get(); len(calls) != 1 || calls[0] != "any" {
		t.Fatalf("sender filter failed: %v", calls)
	}

	ev.Emit(context.Background(), "u1", nil)
	if calls := rec.get(); len(calls) != 3 {
		t.Fatalf("allowed sender should reach both handlers: %v", calls)
	}
}

// --- Cancellation on literal false ---

func TestEmit_FalseCancelsDispatch(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("cancel.test")
	rec := &recorder{}
	var asyncRan atomic.Bool

	ev.OnFunc(record(rec, "first", "ok"), event.WithPriority(10))
	ev.OnFunc(record(rec, "stopper", false), event.WithPriority(5))
	ev.OnFunc(record(rec, "never", "never"), event.WithPriority(1))
	ev.On(event.Async(func(ctx context.Context, em *event.Emission) (any, error) {
		asyncRan.Store(true)
		return nil, nil
	}), event.WithPriority(0))

	results := ev.Emit(context.Background(), "sys", nil)
	reg.Wait()

	calls := rec.get()
	if len(calls) != 2 || calls[1] != "stopper" {
		t.Fatalf("dispatch must stop at the cancelling handler: %v", calls)
	}
	if asyncRan.Load() {
		t.Fatal("async handler after the cancelling handler must not be scheduled")
	}
	if len(results) != 2 || results[1].Data != false {
		t.Fatalf("the cancelling false must be the last result: %+v", results)
	}
}

func TestEmit_FalsyValuesDoNotCancel(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("cancel.falsy")
	rec := &recorder{}

	ev.OnFunc(record(rec, "nil", nil), event.WithPriority(3))
	ev.OnFunc(record(rec, "zero", 0), event.WithPriority(2))
	ev.OnFunc(record(rec, "empty", ""), event.WithPriority(1))

	if results := ev.Emit(context.Background(), "sys", nil); len(results) != 3 {
		t.Fatalf("falsy non-false values must not cancel: %+v", results)
	}
}

// --- Multi-result handlers ---

func TestEmit_MultiDrainedEagerly(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("multi.test")
	rec := &recorder{}

	ev.On(event.SyncMulti(func(ctx context.Context, em *event.Emission) ([]any, error) {
		rec.add("multi")
		return []any{"a", "b", "c"}, nil
	}), event.WithPriority(1))
	ev.OnFunc(record(rec, "after", "d"))

	results := ev.Emit(context.Background(), "sys", nil)

	if calls := rec.get(); calls[0] != "multi" || calls[1] != "after" {
		t.Fatalf("multi handler must complete before the next handler: %v", calls)
	}
	want := []any{"a", "b", "c", "d"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for i, w := range want {
		if results[i].Data != w {
			t.Fatalf("results out of order: %+v", results)
		}
	}
}

func TestEmit_MultiYieldedFalseCancels(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("multi.cancel")
	rec := &recorder{}

	ev.On(event.SyncMulti(func(ctx context.Context, em *event.Emission) ([]any, error) {
		return []any{"a", false, "c"}, nil
	}), event.WithPriority(1))
	ev.OnFunc(record(rec, "never", nil))

	results := ev.Emit(context.Background(), "sys", nil)

	if len(rec.get()) != 0 {
		t.Fatal("handlers after a yielded false must not run")
	}
	if len(results) != 2 || results[1].Data != false {
		t.Fatalf("values after the yielded false must be dropped: %+v", results)
	}
}

// --- Async handlers in synchronous emission ---

func TestEmit_AsyncNotAwaited(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("async.fire")
	release := make(chan struct{})
	var ran atomic.Bool

	ev.On(event.Async(func(ctx context.Context, em *event.Emission) (any, error) {
		<-release
		ran.Store(true)
		return "ignored", nil
	}))

	start := time.Now()
	results := ev.Emit(context.Background(), "sys", nil)
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Emit must not block on async handlers")
	}
	if len(results) != 0 {
		t.Fatalf("async results must not appear in Emit's return: %+v", results)
	}

	close(release)
	reg.Wait()
	if !ran.Load() {
		t.Fatal("async handler never ran")
	}
}

// --- Failure isolation ---

func TestEmit_ErrorIsolatedPerHandler(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("fail.error")
	rec := &recorder{}

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return nil, errors.New("boom")
	}, event.WithPriority(2))
	ev.OnFunc(record(rec, "after", "ok"), event.WithPriority(1))

	results := ev.Emit(context.Background(), "sys", nil)

	if len(rec.get()) != 1 {
		t.Fatal("a failing handler must not abort its siblings")
	}
	if len(results) != 2 || results[0].Err == nil || results[1].Data != "ok" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results.Err() == nil {
		t.Fatal("Results.Err must surface the failure")
	}
	if data := results.Data(); len(data) != 1 || data[0] != "ok" {
		t.Fatalf("Results.Data must exclude failed slots: %v", data)
	}
}

func TestEmit_PanicIsolatedPerHandler(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("fail.panic")
	rec := &recorder{}

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		panic("handler exploded")
	}, event.WithPriority(2))
	ev.OnFunc(record(rec, "after", nil), event.WithPriority(1))

	results := ev.Emit(context.Background(), "sys", nil)

	if len(rec.get()) != 1 {
		t.Fatal("a panicking handler must not abort its siblings")
	}
	if len(results) != 2 || !errors.Is(results[0].Err, event.ErrHandlerPanic) {
		t.Fatalf("expected ErrHandlerPanic in the first slot: %+v", results)
	}
}

// --- EmitAsync ---

func TestEmitAsync_AwaitsAllKinds(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("easync.all")

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return "sync", nil
	}, event.WithPriority(3))
	ev.On(event.Async(func(ctx context.Context, em *event.Emission) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "async", nil
	}), event.WithPriority(2))
	ev.On(event.AsyncMulti(func(ctx context.Context, em *event.Emission) ([]any, error) {
		return []any{"m1", "m2"}, nil
	}), event.WithPriority(1))

	results := ev.EmitAsync(context.Background(), "sys", nil)

	if len(results) != 3 {
		t.Fatalf("expected one slot per handler: %+v", results)
	}
	if results[0].Data != "sync" || results[1].Data != "async" {
		t.Fatalf("results must keep registration-order positions: %+v", results)
	}
	multi, ok := results[2].Data.([]any)
	if !ok || len(multi) != 2 || multi[0] != "m1" {
		t.Fatalf("multi handler slot must carry its value list: %+v", results[2])
	}
}

func TestEmitAsync_FailureInSlot(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("easync.fail")

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return nil, errors.New("boom")
	}, event.WithPriority(2))
	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		panic("bang")
	}, event.WithPriority(1))

	results := ev.EmitAsync(context.Background(), "sys", nil)

	if len(results) != 2 {
		t.Fatalf("expected two slots: %+v", results)
	}
	if results[0].Err == nil || !errors.Is(results[1].Err, event.ErrHandlerPanic) {
		t.Fatalf("failures must stay in their slots: %+v", results)
	}
	if results.Err() == nil {
		t.Fatal("aggregate error expected")
	}
}

func TestEmitAsync_CancelBestEffort(t *testing.T) {
	// One worker slot forces serial execution, making the best-effort
	// cancellation deterministic: the second handler has not started when
	// the first one's false arrives.
	reg := event.NewRegistry(event.WithMaxWorkers(1), event.WithReservedWorkers(0))
	ev := reg.Event("easync.cancel")
	var secondRan atomic.Bool

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return false, nil
	}, event.WithPriority(2))
	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		secondRan.Store(true)
		return "late", nil
	}, event.WithPriority(1))

	results := ev.EmitAsync(context.Background(), "sys", nil)

	if secondRan.Load() {
		t.Fatal("handler not yet started must be stopped by the cancel signal")
	}
	if len(results) != 2 || results[0].Data != false || !errors.Is(results[1].Err, event.ErrCancelled) {
		t.Fatalf("unexpected results: %+v", results)
	}
}

// --- Broadcast bridge ---

type fakeHub struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeHub) Broadcast(topic, sender string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, topic+"/"+sender)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestEmit_TopicRoutedToBroadcaster(t *testing.T) {
	hub := &fakeHub{}
	reg := event.NewRegistry(event.WithBroadcaster(hub))
	ev := reg.Event("bridge.test")

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return false, nil // cancels local dispatch, never broadcast
	})

	ev.Emit(context.Background(), "sys", map[string]any{"id": "1"})
	if hub.count() != 0 {
		t.Fatal("emission without a topic must not broadcast")
	}

	ev.Emit(context.Background(), "sys", map[string]any{"id": "1"}, event.WithTopic("todo.created"))
	if hub.count() != 1 || hub.calls[0] != "todo.created/sys" {
		t.Fatalf("topic-tagged emission must broadcast exactly once: %v", hub.calls)
	}
}

// --- End-to-end scenario ---

func TestEmit_EndToEnd(t *testing.T) {
	reg := event.NewRegistry()
	ev := reg.Event("todo.created")
	rec := &recorder{}

	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		rec.add("p10")
		return "first:" + em.PayloadMap()["id"].(string), nil
	}, event.WithPriority(10))
	ev.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		rec.add("p0")
		return "second", nil
	})

	results := ev.Emit(context.Background(), "sys", map[string]any{"id": "1"})

	calls := rec.get()
	if len(calls) != 2 || calls[0] != "p10" || calls[1] != "p0" {
		t.Fatalf("expected [p10 p0], got %v", calls)
	}
	if len(results) != 2 || results[0].Data != "first:1" || results[1].Data != "second" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

// --- Worker pool ---

func TestEmitAsync_ReservedSlotsSurviveBackgroundSaturation(t *testing.T) {
	reg := event.NewRegistry(event.WithMaxWorkers(2), event.WithReservedWorkers(1))

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	bg := reg.Event("pool.background")
	bg.On(event.Async(func(ctx context.Context, em *event.Emission) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}))

	// Two fire-and-forget emissions: the first occupies the single
	// unreserved slot, the second parks waiting for it. Neither may touch
	// the reserved slot.
	bg.Emit(context.Background(), "sys", nil)
	bg.Emit(context.Background(), "sys", nil)
	<-started

	fg := reg.Event("pool.awaited")
	fg.OnFunc(func(ctx context.Context, em *event.Emission) (any, error) {
		return "ran", nil
	})

	done := make(chan event.Results, 1)
	go func() {
		done <- fg.EmitAsync(context.Background(), "sys", nil)
	}()

	select {
	case results := <-done:
		if len(results) != 1 || results[0].Err != nil || results[0].Data != "ran" {
			t.Fatalf("unexpected results: %+v", results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("awaited dispatch starved by background handlers")
	}

	close(release)
	reg.Wait()
}
