package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GetResult beschreibt das Ergebnis eines Get-Aufrufs.
type GetResult int

const (
	Received GetResult = iota
	Stopped
	TimedOut
	Canceled
)

type envelope[T any] struct {
	item T
	stop bool
}

// Queue ist eine begrenzte FIFO-Warteschlange. Put blockiert bei voller
// Warteschlange; Stop reiht einen Sentinel pro Worker ein.
type Queue[T any] struct {
	name  string
	ch    chan envelope[T]
	depth prometheus.Gauge
}

func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{name: name, ch: make(chan envelope[T], capacity)}
}

// WithGauge meldet die Füllhöhe an einen Prometheus-Gauge.
func (q *Queue[T]) WithGauge(g prometheus.Gauge) *Queue[T] {
	q.depth = g
	return q
}

func (q *Queue[T]) Name() string { return q.name }
func (q *Queue[T]) Len() int     { return len(q.ch) }
func (q *Queue[T]) Cap() int     { return cap(q.ch) }

// Put reiht ein Element ein und blockiert, solange die Warteschlange voll ist.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	select {
	case q.ch <- envelope[T]{item: item}:
		q.observe()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get wartet höchstens timeout auf das nächste Element.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, GetResult) {
	var zero T
	// nach einem Abbruch keine neuen Elemente mehr ausgeben
	if ctx.Err() != nil {
		return zero, Canceled
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-q.ch:
		q.observe()
		if env.stop {
			return zero, Stopped
		}
		return env.item, Received
	case <-timer.C:
		return zero, TimedOut
	case <-ctx.Done():
		return zero, Canceled
	}
}

// Stop reiht n Sentinels ein.
func (q *Queue[T]) Stop(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		select {
		case q.ch <- envelope[T]{stop: true}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (q *Queue[T]) observe() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.ch)))
	}
}
