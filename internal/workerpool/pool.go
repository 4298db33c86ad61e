// Package workerpool runs a bounded number of fallible tasks concurrently.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/PlumpMath/piso/internal/logging"
)

var log = logging.L("workerpool")

// ErrRejected is returned by Submit when the pool is closed or its queue is
// full.
var ErrRejected = errors.New("workerpool: task rejected")

// Task is a unit of work submitted to the pool. ctx is canceled after the
// first task fails.
type Task func(ctx context.Context) error

// Pool is a bounded goroutine pool with a fixed-size task queue. The first
// failing task cancels the pool context so queued tasks can bail out early.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue     chan Task
	wg        sync.WaitGroup
	accepting atomic.Bool
	closeOnce sync.Once

	mu   sync.Mutex
	errs []error
}

// New creates a pool with workers goroutines and a task queue of queueSize.
func New(ctx context.Context, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan Task, queueSize),
	}
	p.accepting.Store(true)

	for i := 0; i < workers; i++ {
		go p.worker()
	}
	log.Debug("worker pool started", "workers", workers, "queueSize", queueSize)
	return p
}

// Submit enqueues a task without blocking.
// wg.Add is called before enqueue so Wait cannot miss the task.
func (p *Pool) Submit(task Task) error {
	if !p.accepting.Load() {
		return ErrRejected
	}

	p.wg.Add(1)
	select {
	case p.queue <- task:
		return nil
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected")
		return ErrRejected
	}
}

// Wait stops accepting tasks, waits for the queued ones, and returns the
// joined task errors. A task that has not started when the pool context ends
// is skipped and reports the context error.
func (p *Pool) Wait() error {
	p.accepting.Store(false)
	p.wg.Wait()
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

func (p *Pool) worker() {
	for task := range p.queue {
		p.runTask(task)
	}
}

// runTask executes a single task with panic recovery. wg.Done is called here
// to match the wg.Add in Submit.
func (p *Pool) runTask(task Task) {
	defer p.wg.Done()

	if err := p.ctx.Err(); err != nil {
		p.fail(err, false)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("workerpool: task panicked: %v", r)
			}
		}()
		err = task(p.ctx)
	}()
	if err != nil {
		p.fail(err, true)
	}
}

func (p *Pool) fail(err error, cause bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Only the first context error is kept so skipped tasks do not bury the
	// failure that caused the cancellation.
	if !cause {
		for _, e := range p.errs {
			if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
				return
			}
		}
	}
	p.errs = append(p.errs, err)
	p.cancel()
}
