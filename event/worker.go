package event

import (
	"context"
	"sync"

	"github.com/yaoapp/kun/log"
)

// Default worker pool configuration.
const (
	DefaultMaxWorkers      = 512
	DefaultReservedWorkers = 10
)

// workerPool bounds the goroutines running background handlers. Workers are
// fire-and-forget: each goroutine runs one handler then exits.
//
// Awaited dispatch (EmitAsync) draws from semTotal only. Fire-and-forget
// handlers scheduled by Emit must also acquire semFree, a smaller
// semaphore, so they cannot starve awaited dispatch.
type workerPool struct {
	max      int
	reserved int

	semTotal chan struct{}
	semFree  chan struct{}

	wg sync.WaitGroup
}

func (p *workerPool) init() {
	free := p.max - p.reserved
	if free < 1 {
		free = 1
	}
	p.semTotal = make(chan struct{}, p.max)
	p.semFree = make(chan struct{}, free)
}

// spawn schedules run as a fire-and-forget worker. The caller never blocks:
// slot acquisition happens inside the goroutine, so a saturated pool only
// delays the handler, not the emitter.
func (p *workerPool) spawn(run func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.semFree <- struct{}{}
		p.semTotal <- struct{}{}
		defer func() {
			<-p.semTotal
			<-p.semFree
		}()
		run()
	}()
}

// submit schedules run as an awaited worker. Blocks until a slot is
// available or ctx is done.
func (p *workerPool) submit(ctx context.Context, run func()) error {
	select {
	case p.semTotal <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.semTotal }()
		run()
	}()
	return nil
}

// wait blocks until all active workers finish.
func (p *workerPool) wait() {
	p.wg.Wait()
}

// runHandler executes h inline with panic recovery. A panicking handler is
// recorded as ErrHandlerPanic and never aborts sibling handlers.
func runHandler(ctx context.Context, em *Emission, h Handler) (vals []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panic: event=%s kind=%s err=%v", em.Event, h.Kind(), r)
			vals, err = nil, ErrHandlerPanic
		}
	}()
	return h.values(ctx, em)
}
