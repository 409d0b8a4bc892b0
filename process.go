package transitions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// attemptFunc runs one trigger attempt.
type attemptFunc func(ctx context.Context) (Result, error)

// queuedAttempt represents an attempt waiting to be processed.
type queuedAttempt struct {
	ctx     context.Context
	attempt attemptFunc
}

// processor serializes trigger attempts for one lock scope: the whole
// machine, or a single model when locking per model.
type processor struct {
	queued bool

	// lock is nil unless the machine was built WithLocking.
	lock *reentrantLock

	// active marks an immediate attempt in progress.
	active atomic.Bool

	// mutex protects queue and firing.
	mutex  sync.Mutex
	queue  []queuedAttempt
	firing bool
}

func newProcessor(queued, locked bool) *processor {
	p := &processor{queued: queued}
	if locked {
		p.lock = &reentrantLock{}
	}
	return p
}

// process runs attempt according to the policy. The lock, when present, is
// held for the whole call, including every callback, and is released on all
// exit paths.
func (p *processor) process(ctx context.Context, attempt attemptFunc) (Result, error) {
	if p.lock != nil {
		var release func()
		ctx, release = p.lock.acquire(ctx)
		defer release()
	}

	if p.queued {
		return p.enqueue(ctx, attempt)
	}
	return p.immediate(ctx, attempt)
}

// immediate runs the attempt on the caller's stack. A trigger issued while
// another attempt of the same scope is running is rejected.
func (p *processor) immediate(ctx context.Context, attempt attemptFunc) (Result, error) {
	if !p.active.CompareAndSwap(false, true) {
		return ResultBlocked, &InvalidOperationError{
			Message: "attempt to process a trigger synchronously while another trigger is being processed; use queued mode for reentrant triggers",
		}
	}
	defer p.active.Store(false)
	return attempt(ctx)
}

// enqueue appends the attempt to the FIFO queue. Only the caller that finds
// the queue idle pumps it; every other caller returns ResultQueued at once.
// The pumping caller receives the result of its own attempt. If any attempt
// fails or panics, the remaining queue is discarded and the error or panic
// propagates. A queued attempt whose own context was cancelled is dropped.
func (p *processor) enqueue(ctx context.Context, attempt attemptFunc) (Result, error) {
	p.mutex.Lock()
	p.queue = append(p.queue, queuedAttempt{ctx: ctx, attempt: attempt})
	if p.firing {
		p.mutex.Unlock()
		return ResultQueued, nil
	}
	p.firing = true
	p.mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.reset()
			panic(r)
		}
	}()

	var first Result
	pumped := 0
	for {
		p.mutex.Lock()
		if len(p.queue) == 0 {
			p.firing = false
			p.mutex.Unlock()
			return first, nil
		}
		next := p.queue[0]
		p.mutex.Unlock()

		result, err := next.attempt(next.ctx)
		if err != nil && !(pumped > 0 && cancelled(next.ctx, err)) {
			p.reset()
			return result, err
		}

		p.mutex.Lock()
		p.queue = p.queue[1:]
		p.mutex.Unlock()

		if pumped == 0 {
			first = result
		}
		pumped++
	}
}

// reset discards the queue and marks the processor idle.
func (p *processor) reset() {
	p.mutex.Lock()
	p.queue = nil
	p.firing = false
	p.mutex.Unlock()
}

// cancelled reports whether err stems from the cancellation of ctx.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// pending returns the number of queued attempts.
func (p *processor) pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.queue)
}
