package asyncserial

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultPoolWorkers covers one session's worst case: a blocked read
	// and a blocked write at the same time.
	DefaultPoolWorkers = 2

	// maxPoolWorkers bounds pool growth. Each session holds at most two
	// outstanding blocking calls, so larger pools add nothing.
	maxPoolWorkers = 4
)

// Pool runs blocking transport calls on a small fixed set of worker
// goroutines so that device I/O never parks an application goroutine. A pool
// is an explicitly constructed, explicitly closed resource; one long-lived
// pool can be shared by many bridges via WithPool.
type Pool struct {
	jobs    chan func()
	quit    chan struct{}
	wg      sync.WaitGroup
	running atomic.Int32

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given number of workers, clamped to 1..4.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if workers > maxPoolWorkers {
		workers = maxPoolWorkers
	}
	p := &Pool{
		jobs: make(chan func()),
		quit: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		p.running.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	defer p.running.Add(-1)
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			job()
		}
	}
}

// Submit hands a blocking call to a free worker. The jobs channel is
// unbuffered, so Submit blocks while every worker is busy; a submitted job
// always runs on exactly one worker, to completion.
func (p *Pool) Submit(job func()) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Workers reports the number of live workers. Zero once Close has returned;
// tests use it to check that failed sessions leak nothing.
func (p *Pool) Workers() int {
	return int(p.running.Load())
}

// Close stops the workers and waits for their in-flight calls to settle.
// Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
	p.wg.Wait()
}

// pending carries one offloaded call's outcome back across the worker
// boundary. The worker resolves it exactly once, then closes done.
type pending[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// offload submits a blocking call and returns its pending result. A panic in
// the call is marshaled into an error: a worker that fails must report the
// failure, not disappear.
func offload[T any](p *Pool, call func() (T, error)) (*pending[T], error) {
	res := &pending[T]{done: make(chan struct{})}
	err := p.Submit(func() {
		defer close(res.done)
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("asyncserial: offloaded call panicked: %v", r)
			}
		}()
		res.val, res.err = call()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// await suspends until the result is resolved or ctx is done. Cancellation
// detaches the caller only: the blocking call keeps running on its worker
// until it settles on its own.
func (r *pending[T]) await(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
