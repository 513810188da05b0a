package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Pool is a bounded worker pool for triggered message processing. Enqueue
// happens only after the recording transaction commits, so a worker never
// races the insert of the message it processes.
type Pool struct {
	engine *Engine
	tasks  chan func()
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool starts a pool with the given number of workers and queue depth.
func NewPool(engine *Engine, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Pool{
		engine: engine,
		tasks:  make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task, blocking when the queue is full.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Enqueue schedules pipeline processing for a recorded message. The task
// carries its own context so an HTTP handler returning does not cancel it.
func (p *Pool) Enqueue(ctx context.Context, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	p.Submit(func() {
		if _, err := p.engine.ProcessMessage(ctx, id); err != nil {
			slog.Warn("Triggered processing failed", "message_id", id, "error", err)
		}
	})
}

// Close stops accepting tasks and waits for in-flight work to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
