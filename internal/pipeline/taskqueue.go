package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	tcerrors "tracecap/pkg/errors"
)

// Task is one opaque unit of work the AsyncTaskQueue's consumer
// executes. Execute is called with a context holding the facade's
// active SafeTransaction.
type Task struct {
	ID      string
	Execute func(ctx context.Context) error
}

// NewTask wraps fn as a Task with a fresh id.
func NewTask(fn func(ctx context.Context) error) Task {
	return Task{ID: uuid.NewString(), Execute: fn}
}

// sentinel tags the cooperative shutdown marker; it carries
// no Execute body of its own.
type sentinel struct{}

// AsyncTaskQueue is a single-consumer FIFO of Tasks. The consumer
// goroutine is lazily spawned on first Enqueue, drains the queue on a
// fixed cadence inside one SafeTransaction per drain, and stops
// cooperatively when it dequeues a Shutdown sentinel.
type AsyncTaskQueue struct {
	log      *logrus.Entry
	interval time.Duration
	runTx    func(ctx context.Context, fn func(ctx context.Context) error) error

	mu       sync.Mutex
	queue    []interface{} // Task or sentinel
	notEmpty chan struct{}
	started  bool
	stopped  chan struct{}
	inTask   bool
}

// NewAsyncTaskQueue returns a queue whose drain cadence is interval
// and whose drains run inside runTx (ordinarily Facade.SafeTransaction).
func NewAsyncTaskQueue(interval time.Duration, runTx func(ctx context.Context, fn func(ctx context.Context) error) error, log *logrus.Entry) *AsyncTaskQueue {
	return &AsyncTaskQueue{
		log:      log,
		interval: interval,
		runTx:    runTx,
		notEmpty: make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Enqueue appends t to the FIFO, lazily starting the consumer
// goroutine on the first call.
func (q *AsyncTaskQueue) Enqueue(t Task) {
	q.mu.Lock()
	q.queue = append(q.queue, t)
	start := !q.started
	q.started = true
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}

	if start {
		go q.run()
	}
}

// Shutdown enqueues the sentinel task and blocks until the consumer
// has processed it and exited. It must never be called from within a
// Task's Execute — doing so would deadlock the join, and tracecap
// treats that as ShutdownError instead of hanging.
func (q *AsyncTaskQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.inTask {
		q.mu.Unlock()
		return tcerrors.NewShutdownError("Shutdown called from within a Task's Execute")
	}
	q.queue = append(q.queue, sentinel{})
	started := q.started
	q.started = true
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}

	if !started {
		go q.run()
	}

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *AsyncTaskQueue) run() {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for range ticker.C {
		if q.drainOnce() {
			close(q.stopped)
			return
		}
	}
}

// drainOnce pops every currently queued item and executes it inside
// one SafeTransaction, returning true if the sentinel was seen.
func (q *AsyncTaskQueue) drainOnce() bool {
	q.mu.Lock()
	items := q.queue
	q.queue = nil
	q.mu.Unlock()

	if len(items) == 0 {
		return false
	}

	sawSentinel := false
	for _, item := range items {
		if _, ok := item.(sentinel); ok {
			sawSentinel = true
		}
	}
	err := q.runTx(context.Background(), func(ctx context.Context) error {
		q.mu.Lock()
		q.inTask = true
		q.mu.Unlock()
		defer func() {
			q.mu.Lock()
			q.inTask = false
			q.mu.Unlock()
		}()

		for _, item := range items {
			if _, ok := item.(sentinel); ok {
				sawSentinel = true
				continue
			}
			t := item.(Task)
			if err := t.Execute(ctx); err != nil {
				q.log.WithError(err).WithField("task_id", t.ID).Error("async task failed")
				return err
			}
		}
		return nil
	})
	if err != nil {
		q.log.WithError(err).Warn("async task queue drain failed")
	}
	return sawSentinel
}
