package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan error, 1)
	q := NewQueue("test", QueueConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		OnDone:     func(_ Job, err error) { done <- err },
	})
	q.Register("flaky", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "flaky"}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("test", QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnDone:     func(_ Job, err error) { done <- err },
	})
	q.Register("broken", func(ctx context.Context, job Job) error { return errors.New("down") })
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "broken"}))
	select {
	case err := <-done:
		require.EqualError(t, err, "down")
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestEnqueueRejectsUnknownTypeAndUnstartedQueue(t *testing.T) {
	q := NewQueue("test", QueueConfig{})
	require.Error(t, q.Enqueue(Job{Type: "x"}))

	q.Start(context.Background())
	defer q.Stop()
	require.Error(t, q.Enqueue(Job{Type: "x"}))
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	q := NewQueue("test", QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
}
