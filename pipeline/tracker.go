package pipeline

import (
	"context"
	"sync"
)

// tracker zählt Elemente, die die Pipeline noch nicht verlassen haben. Nach
// seal und sobald der Zähler null erreicht, wird drained geschlossen.
type tracker struct {
	mu       sync.Mutex
	inFlight int
	sealed   bool
	closed   bool
	drained  chan struct{}
}

func newTracker() *tracker {
	return &tracker{drained: make(chan struct{})}
}

func (t *tracker) add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight += n
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight--
	t.check()
}

// seal meldet, dass keine weiteren Elemente eingereicht werden.
func (t *tracker) seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
	t.check()
}

func (t *tracker) check() {
	if t.sealed && t.inFlight <= 0 && !t.closed {
		t.closed = true
		close(t.drained)
	}
}

func (t *tracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// wait blockiert, bis alle Elemente abgeschlossen sind oder ctx endet.
func (t *tracker) wait(ctx context.Context) error {
	select {
	case <-t.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
