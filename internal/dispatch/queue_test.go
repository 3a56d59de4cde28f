package dispatch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/dispatch"
)

func TestQueueRunsTasks(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 8)
	q.Start()

	var ran atomic.Int32
	for range 5 {
		q.Enqueue("count", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	q.Flush()
	assert.Equal(t, int32(5), ran.Load())
}

func TestQueueFlushDrainsPending(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 2)

	var ran atomic.Int32
	for range 10 {
		q.Enqueue("pending", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	// never started; Flush alone must drain the backlog
	q.Flush()
	assert.Equal(t, int32(10), ran.Load())
}

func TestQueueRetriesFailedTask(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 8)
	q.Start()

	var attempts atomic.Int32
	q.Enqueue("flaky", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	q.Flush()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 8)
	q.Start()

	var attempts atomic.Int32
	q.Enqueue("doomed", func(context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	})

	q.Flush()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueRecoversFromPanic(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 8)
	q.Start()

	var ran atomic.Bool
	q.Enqueue("panics", func(context.Context) error {
		panic("boom")
	})
	q.Enqueue("survives", func(context.Context) error {
		ran.Store(true)
		return nil
	})

	q.Flush()
	assert.True(t, ran.Load())
}

func TestQueueTaskTimeout(t *testing.T) {
	q := dispatch.NewQueue(50*time.Millisecond, 8)
	q.Start()

	var sawDeadline atomic.Bool
	q.Enqueue("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			sawDeadline.Store(true)
			return nil
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	q.Flush()
	assert.True(t, sawDeadline.Load())
}

func TestQueueCancelSkipsPending(t *testing.T) {
	q := dispatch.NewQueue(time.Second, 8)

	var ran atomic.Int32
	for range 5 {
		q.Enqueue("never", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	q.Cancel()
	assert.Equal(t, int32(0), ran.Load())
}
