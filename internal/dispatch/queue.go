// Package dispatch runs fire-and-forget persistence work off the request
// path. Tasks are executed sequentially in bounded batches with retries;
// the HTTP response never waits on them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"
)

type (
	// Task is one unit of background work
	Task struct {
		Fn   func(context.Context) error
		Name string
	}

	// Queue executes queued tasks sequentially in bounded batches
	Queue struct {
		prod        topic.Producer[Task]
		cons        topic.Consumer[Task]
		stop        chan struct{}
		taskTimeout time.Duration
		batchSize   int
		wg          sync.WaitGroup
		startOnce   sync.Once
		stopOnce    sync.Once
		cleanupOnce sync.Once
	}
)

var ErrTaskPanicked = errors.New("task panicked")

const (
	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

// NewQueue creates a task queue. Each task runs under taskTimeout; up to
// batchSize tasks are drained per wakeup
func NewQueue(taskTimeout time.Duration, batchSize int) *Queue {
	queue := caravan.NewTopic[Task]()
	return &Queue{
		prod:        queue.NewProducer(),
		cons:        queue.NewConsumer(),
		stop:        make(chan struct{}),
		taskTimeout: taskTimeout,
		batchSize:   batchSize,
	}
}

// Start begins processing queued tasks
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.wg.Go(func() {
			for {
				select {
				case <-q.stop:
					return
				case task, ok := <-q.cons.Receive():
					if !ok {
						return
					}
					q.runBatch(q.collectBatch(task))
				}
			}
		})
	})
}

// Enqueue adds a named task to the queue
func (q *Queue) Enqueue(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	q.prod.Send() <- Task{
		Fn:   fn,
		Name: name,
	}
}

// Flush waits for queued tasks to complete and stops the queue
func (q *Queue) Flush() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	q.cleanupOnce.Do(q.flush)
}

// Cancel immediately stops the queue without processing remaining tasks
func (q *Queue) Cancel() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	q.cleanupOnce.Do(q.close)
}

func (q *Queue) collectBatch(first Task) []Task {
	batch := []Task{first}
	for len(batch) < q.batchSize {
		select {
		case task, ok := <-q.cons.Receive():
			if !ok {
				return batch
			}
			batch = append(batch, task)
		default:
			return batch
		}
	}
	return batch
}

func (q *Queue) flush() {
	for {
		select {
		case task, ok := <-q.cons.Receive():
			if !ok {
				q.close()
				return
			}
			q.runBatch(q.collectBatch(task))
		default:
			q.close()
			return
		}
	}
}

func (q *Queue) close() {
	q.prod.Close()
	q.cons.Close()
}

func (q *Queue) runBatch(batch []Task) {
	for _, task := range batch {
		q.runTask(task)
	}
}

func (q *Queue) runTask(task Task) {
	for attempt := range maxRetries {
		err := q.tryRunTask(task)
		if err == nil {
			return
		}
		slog.Error("Dispatch task failed",
			slog.String("task", task.Name),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries),
			slog.Any("error", err))
		if attempt < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	slog.Error("Dispatch task permanently failed",
		slog.String("task", task.Name))
}

func (q *Queue) tryRunTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	ctx, cancel := context.WithTimeout(
		context.Background(), q.taskTimeout,
	)
	defer cancel()
	return task.Fn(ctx)
}
