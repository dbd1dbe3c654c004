package event

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Kind selects the execution model of a handler. Synchronous kinds run
// inline in the emitter's goroutine; asynchronous kinds run on the
// registry's worker pool. Multi kinds produce a list of values instead of
// a single one.
type Kind int

const (
	// KindSync runs inline and yields one result.
	KindSync Kind = iota
	// KindAsync runs in the background and yields one result.
	KindAsync
	// KindSyncMulti runs inline and yields zero or more results, drained
	// eagerly before the next handler runs.
	KindSyncMulti
	// KindAsyncMulti runs in the background and yields zero or more results.
	KindAsyncMulti
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	case KindSyncMulti:
		return "sync-multi"
	case KindAsyncMulti:
		return "async-multi"
	default:
		return "unknown"
	}
}

// Func is a single-result handler callable.
type Func func(ctx context.Context, em *Emission) (any, error)

// MultiFunc is a multi-result handler callable.
type MultiFunc func(ctx context.Context, em *Emission) ([]any, error)

// Handler is the tagged union of the four handler kinds. Construct one with
// Sync, Async, SyncMulti or AsyncMulti; the zero value is invalid.
type Handler struct {
	kind  Kind
	fn    Func
	multi MultiFunc
}

// Sync wraps fn as an inline single-result handler.
func Sync(fn Func) Handler { return Handler{kind: KindSync, fn: fn} }

// Async wraps fn as a background single-result handler.
func Async(fn Func) Handler { return Handler{kind: KindAsync, fn: fn} }

// SyncMulti wraps fn as an inline multi-result handler.
func SyncMulti(fn MultiFunc) Handler { return Handler{kind: KindSyncMulti, multi: fn} }

// AsyncMulti wraps fn as a background multi-result handler.
func AsyncMulti(fn MultiFunc) Handler { return Handler{kind: KindAsyncMulti, multi: fn} }

// Kind returns the handler's execution kind.
func (h Handler) Kind() Kind { return h.kind }

func (h Handler) valid() bool {
	switch h.kind {
	case KindSync, KindAsync:
		return h.fn != nil
	case KindSyncMulti, KindAsyncMulti:
		return h.multi != nil
	}
	return false
}

func (h Handler) background() bool {
	return h.kind == KindAsync || h.kind == KindAsyncMulti
}

// values runs the callable inline and normalizes the outcome to a value
// list. Panic recovery is the caller's job (see runHandler).
func (h Handler) values(ctx context.Context, em *Emission) ([]any, error) {
	switch h.kind {
	case KindSyncMulti, KindAsyncMulti:
		return h.multi(ctx, em)
	default:
		v, err := h.fn(ctx, em)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
}

// Result holds the outcome of one handler invocation.
type Result struct {
	Data any
	Err  error
}

// Results is the ordered outcome of one dispatch call.
type Results []Result

// Data returns the non-error values in order.
func (rs Results) Data() []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		if r.Err == nil {
			out = append(out, r.Data)
		}
	}
	return out
}

// Err aggregates all per-handler failures, or nil when every handler
// succeeded.
func (rs Results) Err() error {
	var merr *multierror.Error
	for _, r := range rs {
		if r.Err != nil {
			merr = multierror.Append(merr, r.Err)
		}
	}
	return merr.ErrorOrNil()
}
