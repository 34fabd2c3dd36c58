package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("test", func(_ context.Context, j Job) error {
		done <- j.ID
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "sms.dispatch"}))

	select {
	case id := <-done:
		assert.Equal(t, "j1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "j1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestQueueRetriesFailedJob(t *testing.T) {
	attempts := make(chan int, 4)
	q := NewQueue("test", func(_ context.Context, j Job) error {
		attempts <- j.Attempt
		if j.Attempt == 0 {
			return errors.New("gateway hiccup")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "sms.dispatch"}))

	for _, want := range []int{0, 1} {
		select {
		case got := <-attempts:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d never ran", want)
		}
	}
}

func TestQueueFullBufferRejects(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		entered <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))

	// Wait until the worker holds j1 so the buffer is verifiably empty,
	// then fill it and overflow it.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up j1")
	}

	require.NoError(t, q.Enqueue(Job{ID: "j2"}))

	err := q.Enqueue(Job{ID: "j3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}
