package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsJobs(t *testing.T) {
	p := New(3, 10)
	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 10, n.Load())
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_QueueFull(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)

	close(release)
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrStopped)
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := New(1, 5)
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.EqualValues(t, 5, n.Load())
	assert.Equal(t, 0, p.Pending())
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	p := New(1, 2)
	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_StopTimeoutCancelsJobs(t *testing.T) {
	p := New(1, 1)
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
}
