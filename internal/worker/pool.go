package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit after Wait or Shutdown
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produced
type Result interface {
	Err() error
}

// skipped stands in for jobs that never ran because the pool was cancelled
type skipped struct {
	err error
}

func (s skipped) Err() error { return s.err }

type task struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of goroutines and returns results in
// submission order. Submit and Wait are meant to be called from one
// goroutine.
type Pool struct {
	workers int
	queue   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	results []Result
	closed  bool
}

// NewPool creates a pool bound to ctx. workers < 1 means 1.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		queue:   make(chan task, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Workers returns the concurrency bound
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			res := t.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[t.index] = res
			p.mu.Unlock()
		}
	}
}

// Submit queues job, blocking while all workers are busy and the queue is full
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.queue <- task{index: index, job: job}:
		return nil
	}
}

// Wait closes the queue, waits for the workers and returns one result per
// submitted job. Jobs cancelled before running report the context error.
func (p *Pool) Wait() []Result {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	for i, r := range p.results {
		if r == nil {
			err := p.ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			r = skipped{err: err}
		}
		out[i] = r
	}
	p.cancel()
	return out
}

// Shutdown cancels running jobs and waits for the workers to exit
func (p *Pool) Shutdown() {
	p.cancel()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
