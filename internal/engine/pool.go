package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrPoolClosed is returned when submitting to a stopped pool.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	tasks   chan func()
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	workers int
}

// NewPool starts workers goroutines with a queue of queueSize pending tasks.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Worker task panicked")
		}
	}()
	task()
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.workers }

// Submit enqueues task, waiting for queue space until ctx is done.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.stop:
		return ErrPoolClosed
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolClosed
	}
}

// Stop signals workers to exit after their current task and waits for them.
// Queued tasks that have not started are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// submitAndWait runs fn on the pool and blocks until it returns or ctx is done.
// When ctx ends first the task still completes in the background.
func submitAndWait[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	var zero T
	if err := p.Submit(ctx, func() {
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}); err != nil {
		return zero, err
	}

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
