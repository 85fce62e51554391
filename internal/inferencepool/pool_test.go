package inferencepool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/corefail"
)

func TestSubmit_PublishesResultKeyedByFrameSeq(t *testing.T) {
	p := New(2, time.Second, 100)
	defer p.Close()

	err := p.Submit(Task{FrameSeq: 7, Call: func(ctx context.Context) (any, error) {
		return "detected", nil
	}})
	require.NoError(t, err)

	select {
	case res := <-p.Results():
		assert.Equal(t, uint64(7), res.FrameSeq)
		assert.Equal(t, "detected", res.Value)
		assert.NoError(t, res.Err)
		assert.False(t, res.TimedOut)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSubmit_BackpressureWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(1, time.Second, 100)
	defer func() {
		close(block)
		p.Close()
	}()

	blockingCall := func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}

	// Queue capacity is 2*workers = 2; the first Submit starts executing
	// immediately (consumed by the single worker), leaving 2 queue slots.
	require.NoError(t, p.Submit(Task{FrameSeq: 1, Call: blockingCall}))
	require.NoError(t, p.Submit(Task{FrameSeq: 2, Call: blockingCall}))
	require.NoError(t, p.Submit(Task{FrameSeq: 3, Call: blockingCall}))

	err := p.Submit(Task{FrameSeq: 4, Call: blockingCall})
	require.Error(t, err)
	assert.True(t, corefail.Is(err, corefail.Backpressure))
}

func TestExecute_TimeoutPublishesTimedOutResult(t *testing.T) {
	p := New(1, 20*time.Millisecond, 100)
	defer p.Close()

	err := p.Submit(Task{FrameSeq: 1, Call: func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	require.NoError(t, err)

	select {
	case res := <-p.Results():
		assert.True(t, res.TimedOut)
		assert.True(t, corefail.Is(res.Err, corefail.InferenceTimeout))
		assert.Equal(t, uint64(1), p.TimedOutCount())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestExecute_StaleResultDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := New(1, time.Second, 0) // maxStale=0: anything behind current is stale

	defer func() {
		close(release)
		p.Close()
	}()

	// Task 1 starts executing and blocks until released.
	require.NoError(t, p.Submit(Task{FrameSeq: 1, Call: func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "late", nil
	}})
	<-started

	// A much later frame advances currentFrame past task 1's staleness window.
	require.NoError(t, p.Submit(Task{FrameSeq: 50, Call: func(ctx context.Context) (any, error) {
		return "fresh", nil
	}}))

	release <- struct{}{}

	// Only the fresh result should ever be published; task 1's result is
	// discarded as stale.
	select {
	case res := <-p.Results():
		assert.Equal(t, uint64(50), res.FrameSeq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fresh result")
	}

	select {
	case res := <-p.Results():
		t.Fatalf("unexpected second result published: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClose_StopsWorkersAndClosesResults(t *testing.T) {
	p := New(2, time.Second, 10)
	p.Close()

	_, ok := <-p.Results()
	assert.False(t, ok, "results channel should be closed after Close")
}
