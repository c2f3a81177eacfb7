package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paper-kb/apperr"
)

// Handler verarbeitet ein Element einer Stufe.
type Handler[In, Out any] func(ctx context.Context, worker int, item In) (Out, error)

// workerGroup verwaltet die Goroutinen einer Stufe und merkt sich, welche
// Worker noch laufen.
type workerGroup struct {
	name  string
	wg    sync.WaitGroup
	mu    sync.Mutex
	alive map[int]bool
}

func newWorkerGroup(name string) *workerGroup {
	return &workerGroup{name: name, alive: make(map[int]bool)}
}

func (g *workerGroup) spawn(id int, fn func()) {
	g.mu.Lock()
	g.alive[id] = true
	g.mu.Unlock()
	g.wg.Add(1)
	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.alive, id)
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn()
	}()
}

// join wartet höchstens timeout und liefert die Namen der Worker, die dann noch laufen.
func (g *workerGroup) join(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int, 0, len(g.alive))
	for id := range g.alive {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, fmt.Sprintf("%s-%d", g.name, id))
	}
	return names
}

// callWithTimeout führt fn unter einem harten Timeout aus. Der Aufruf läuft auf
// einem von parent entkoppelten Kontext: Shutdown bricht ihn nicht ab, nur der
// Timeout. Panics werden zu Fehlern.
func callWithTimeout[In, Out any](parent context.Context, timeout time.Duration, fn Handler[In, Out], worker int, item In) (Out, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	type result struct {
		out Out
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: panic: %v", apperr.ErrTransientExternal, r)}
			}
		}()
		out, err := fn(ctx, worker, item)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		var zero Out
		return zero, apperr.Transient(fmt.Sprintf("timeout nach %s", timeout), ctx.Err())
	}
}
