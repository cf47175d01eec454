package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/knightjoel/zpark/core"
)

var (
	// ErrQueueClosed ends a worker's dequeue loop.
	ErrQueueClosed = errors.New("tasks: queue closed")
	// ErrQueueFull rejects a submission instead of blocking the caller.
	ErrQueueFull = errors.New("tasks: queue full")
)

// MemoryJobQueue is the executor's default backend: a bounded channel
// speaking the same enqueue/dequeue contracts an external queue would.
// Nacked deliveries re-enter through the scheduler after their delay.
type MemoryJobQueue struct {
	schedule func(delay time.Duration, run func())

	mu     sync.Mutex
	ch     chan *core.JobExecutionMessage
	closed bool
}

func NewMemoryJobQueue(depth int, schedule func(delay time.Duration, run func())) *MemoryJobQueue {
	if depth < 1 {
		depth = 1
	}
	if schedule == nil {
		schedule = func(delay time.Duration, run func()) {
			time.AfterFunc(delay, run)
		}
	}
	return &MemoryJobQueue{
		schedule: schedule,
		ch:       make(chan *core.JobExecutionMessage, depth),
	}
}

func (q *MemoryJobQueue) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return errors.New("tasks: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a message arrives, the queue closes, or ctx is
// done. After Close, buffered messages still drain before the closed
// error surfaces.
func (q *MemoryJobQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryJobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

type memoryDelivery struct {
	queue *MemoryJobQueue
	msg   *core.JobExecutionMessage
}

func (d *memoryDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

// Nack schedules a requeue after the delay. Dead-lettered deliveries
// and re-enqueues racing Close are dropped; the executor has already
// recorded the terminal state by then.
func (d *memoryDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	if !opts.Requeue || opts.DeadLetter {
		return nil
	}
	msg := d.msg
	d.queue.schedule(opts.Delay, func() {
		_ = d.queue.Enqueue(context.Background(), msg)
	})
	return nil
}

var (
	_ core.JobEnqueuer = (*MemoryJobQueue)(nil)
	_ core.JobDequeuer = (*MemoryJobQueue)(nil)
	_ core.JobDelivery = (*memoryDelivery)(nil)
)
