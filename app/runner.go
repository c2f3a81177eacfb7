package app

import (
	"context"
	"errors"
	"sync"

	"paper-kb/pipeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunActive wird geliefert, wenn bereits ein Lauf aktiv ist.
var ErrRunActive = errors.New("ein Lauf ist bereits aktiv")

// Runner erlaubt höchstens einen gleichzeitigen Lauf und führt ihn im Hintergrund aus.
type Runner struct {
	app *App

	mu       sync.Mutex
	active   *pipeline.Coordinator
	activeID string
	done     chan struct{}
}

func NewRunner(a *App) *Runner {
	return &Runner{app: a}
}

// Start scannt INPUT_DIR und startet einen Lauf im Hintergrund. Liefert die Lauf-ID.
func (r *Runner) Start(ctx context.Context, limit int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return "", ErrRunActive
	}

	sources, err := pipeline.ScanSources(r.app.Config.InputDir, limit)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	coord := r.app.NewCoordinator(ctx)
	r.active, r.activeID = coord, runID
	r.done = make(chan struct{})
	done := r.done

	go func() {
		defer close(done)
		defer func() {
			r.mu.Lock()
			r.active, r.activeID = nil, ""
			r.mu.Unlock()
		}()
		report, err := coord.RunWithID(context.WithoutCancel(ctx), runID, sources)
		if err != nil {
			r.app.Logger.Error("Run failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		r.app.SaveReport(context.Background(), report)
	}()
	return runID, nil
}

// Active liefert die ID des aktiven Laufs oder "".
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Stop bricht den aktiven Lauf ab und meldet, ob einer lief.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return false
	}
	r.active.Stop()
	return true
}

// Wait blockiert, bis der aktuelle Lauf beendet ist oder ctx endet.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
