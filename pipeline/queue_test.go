package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOAndTimeout(t *testing.T) {
	q := NewQueue[string]("test", 3)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "a"))
	require.NoError(t, q.Put(ctx, "b"))
	assert.Equal(t, 2, q.Len())

	item, res := q.Get(ctx, 10*time.Millisecond)
	assert.Equal(t, Received, res)
	assert.Equal(t, "a", item)
	item, res = q.Get(ctx, 10*time.Millisecond)
	assert.Equal(t, Received, res)
	assert.Equal(t, "b", item)

	_, res = q.Get(ctx, 10*time.Millisecond)
	assert.Equal(t, TimedOut, res)
}

func TestQueue_PutBlocksWhenFull(t *testing.T) {
	q := NewQueue[int]("test", 1)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Sobald ein Consumer entnimmt, geht Put durch.
	done := make(chan error, 1)
	go func() { done <- q.Put(context.Background(), 3) }()
	_, res := q.Get(context.Background(), time.Second)
	require.Equal(t, Received, res)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put blieb trotz freiem Platz blockiert")
	}
}

func TestQueue_StopSentinels(t *testing.T) {
	q := NewQueue[int]("test", 4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 7))
	require.NoError(t, q.Stop(ctx, 2))

	item, res := q.Get(ctx, time.Second)
	assert.Equal(t, Received, res)
	assert.Equal(t, 7, item)
	_, res = q.Get(ctx, time.Second)
	assert.Equal(t, Stopped, res)
	_, res = q.Get(ctx, time.Second)
	assert.Equal(t, Stopped, res)
}

func TestQueue_GetCanceled(t *testing.T) {
	q := NewQueue[int]("test", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, res := q.Get(ctx, time.Second)
	assert.Equal(t, Canceled, res)
}
