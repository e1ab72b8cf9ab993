package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

const defaultQueueCap = 64

// Job is one unit of relay work.
type Job func(ctx context.Context)

// keyQueue serializes jobs for a single binding key.
type keyQueue struct {
	jobs   []Job
	active bool
}

// Dispatcher runs jobs FIFO per key. Each key with pending work has one worker
// goroutine; distinct keys run concurrently. When a key's queue is full the
// oldest pending job is dropped.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	cap    int

	mu     sync.Mutex
	queues map[string]*keyQueue
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. cap <= 0 uses the default of 64.
func NewDispatcher(cap int) *Dispatcher {
	if cap <= 0 {
		cap = defaultQueueCap
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:    ctx,
		cancel: cancel,
		cap:    cap,
		queues: make(map[string]*keyQueue),
	}
}

// Submit queues job under key. Returns ErrQueueDropped when an older job was
// evicted to make room and ErrQueueFull after Close.
func (d *Dispatcher) Submit(key string, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrQueueFull
	}

	q, ok := d.queues[key]
	if !ok {
		q = &keyQueue{}
		d.queues[key] = q
	}

	var err error
	if len(q.jobs) >= d.cap {
		q.jobs = q.jobs[1:]
		err = ErrQueueDropped
		slog.Warn("relay queue full, dropped oldest event", "key", key, "cap", d.cap)
	}
	q.jobs = append(q.jobs, job)

	if !q.active {
		q.active = true
		d.wg.Add(1)
		go d.drain(key, q)
	}
	return err
}

// drain runs the queue of one key until it is empty, then forgets the key.
func (d *Dispatcher) drain(key string, q *keyQueue) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			q.active = false
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		d.run(key, job)
	}
}

func (d *Dispatcher) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("relay job panicked",
				"key", key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	job(d.ctx)
}

// QueueLen returns the number of pending jobs for key.
func (d *Dispatcher) QueueLen(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[key]; ok {
		return len(q.jobs)
	}
	return 0
}

// Close stops accepting jobs and waits for queued work to finish or ctx to
// expire. On expiry running jobs see their context cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
