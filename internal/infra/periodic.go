package infra

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PeriodicTask runs a function on a fixed interval with an overlap guard:
// if a run is still in progress when the ticker fires, that tick is skipped
// rather than stacking a second run. Stops cleanly on context cancellation.
type PeriodicTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewPeriodicTask creates a periodic task. The function is not invoked until
// Start; pass runImmediately to Start for an initial run before the first tick.
func NewPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context)) *PeriodicTask {
	return &PeriodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

// Start launches the ticker loop in its own goroutine.
func (t *PeriodicTask) Start(ctx context.Context, runImmediately bool) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if runImmediately {
			t.run(ctx)
		}

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("Periodic task stopped", "task", t.name)
				return
			case <-ticker.C:
				t.run(ctx)
			}
		}
	}()
}

func (t *PeriodicTask) run(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		slog.Warn("Previous run still in progress, skipping tick", "task", t.name)
		return
	}
	defer t.running.Store(false)

	t.fn(ctx)
}

// Stop cancels the loop and waits for any in-flight run to finish.
func (t *PeriodicTask) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}
