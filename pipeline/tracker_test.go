package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_DrainsAfterSeal(t *testing.T) {
	tr := newTracker()
	tr.add(2)
	tr.done()
	tr.done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// ohne seal kann jederzeit noch etwas eingereicht werden
	assert.Error(t, tr.wait(ctx))

	tr.seal()
	assert.NoError(t, tr.wait(context.Background()))
	assert.Equal(t, 0, tr.pending())
}

func TestTracker_WaitCanceled(t *testing.T) {
	tr := newTracker()
	tr.add(1)
	tr.seal()
	assert.Equal(t, 1, tr.pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.wait(ctx), context.Canceled)
}

func TestTracker_EmptyRun(t *testing.T) {
	tr := newTracker()
	tr.seal()
	assert.NoError(t, tr.wait(context.Background()))
}
