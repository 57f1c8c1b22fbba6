package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "a"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "b"}))
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "flaky"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.TryEnqueue(Job{ID: "x"}))

	q.Start(context.Background())
	q.Stop()
	require.Error(t, q.TryEnqueue(Job{ID: "y"}))
}

func TestQueueTryEnqueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(context.Context, Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.TryEnqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "buffered"}))
	err := q.TryEnqueue(Job{ID: "overflow"})
	require.ErrorIs(t, err, ErrQueueFull)

	close(block)
	q.Stop()
}
