// Package queue runs tasks one at a time on a single goroutine, so state
// owned by the tasks never sees concurrent mutation.
package queue

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
)

var ErrClosed = errors.New("queue: closed")

type Task func(context.Context) error

type Queue struct {
	log    *log.Logger
	mu     sync.Mutex
	closed bool
	ch     chan Task
	done   chan struct{}
}

func New(size int, logger *log.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		log:  logger,
		ch:   make(chan Task, size),
		done: make(chan struct{}),
	}
}

// Start processes tasks in FIFO order until ctx is done or the queue is
// closed and drained. It must be called at most once.
func (q *Queue) Start(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.ch:
			if !ok {
				return
			}
			if task == nil {
				continue
			}
			if err := task(ctx); err != nil {
				q.log.Warn("Task failed", "err", err)
			}
		}
	}
}

// Enqueue blocks while the queue is full. It fails once the queue is closed
// or its consumer has stopped.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- task:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Done is closed when Start returns.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
