package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used in tests and single-node setups.
// Delivery and retry semantics mirror the NATS implementation.
type MemoryQueue struct {
	mu       sync.Mutex
	handlers map[string]Handler
	tasks    chan deliverable
	wg       sync.WaitGroup
	stopped  chan struct{}
	backoff  time.Duration
}

type deliverable struct {
	queue string
	env   Envelope
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		handlers: make(map[string]Handler),
		tasks:    make(chan deliverable, 256),
		stopped:  make(chan struct{}),
		backoff:  10 * time.Millisecond,
	}
}

func (q *MemoryQueue) RegisterHandler(taskName string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskName] = h
}

func (q *MemoryQueue) Schedule(ctx context.Context, queueName, taskName string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	select {
	case q.tasks <- deliverable{queue: queueName, env: Envelope{Name: taskName, Payload: raw}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.stopped:
				return
			case <-ctx.Done():
				return
			case d := <-q.tasks:
				q.deliver(ctx, d)
			}
		}
	}()
	return nil
}

func (q *MemoryQueue) deliver(ctx context.Context, d deliverable) {
	q.mu.Lock()
	handler, ok := q.handlers[d.env.Name]
	q.mu.Unlock()
	if !ok {
		return
	}

	err := handler(ctx, d.env.Payload)
	if err == nil || errors.Is(err, ErrPermanent) {
		return
	}
	if d.env.Attempt+1 >= maxAttempts {
		return
	}
	d.env.Attempt++
	time.AfterFunc(q.backoff, func() {
		select {
		case q.tasks <- d:
		case <-q.stopped:
		}
	})
}

func (q *MemoryQueue) Stop() {
	close(q.stopped)
	q.wg.Wait()
}

// ScheduleRaw bypasses payload marshalling; test helper.
func (q *MemoryQueue) ScheduleRaw(queueName, taskName string, raw json.RawMessage) {
	q.tasks <- deliverable{queue: queueName, env: Envelope{Name: taskName, Payload: raw}}
}
