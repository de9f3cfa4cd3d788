// Package worker owns the engine's two background loops: the price tick
// generator and the pending-order sweep. Both run at a fixed rate until the
// scheduler is stopped; neither blocks the other.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one cadence-driven unit of work.
type Task func(ctx context.Context)

// Scheduler runs named tasks on independent fixed-rate tickers with a
// shared cancellation signal. Stop waits for in-flight passes to finish,
// so durable writes are never cut off mid-batch.
type Scheduler struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks []scheduled
}

type scheduled struct {
	name     string
	interval time.Duration
	task     Task
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers a task to run at the given interval once Start is called.
func (s *Scheduler) Add(name string, interval time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{name: name, interval: interval, task: task})
}

// Start launches every registered task. Each runs once immediately, then on
// its own ticker.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	tasks := make([]scheduled, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go s.run(ctx, t)
	}
}

func (s *Scheduler) run(ctx context.Context, t scheduled) {
	defer s.wg.Done()

	slog.Info("worker started", "name", t.name, "interval", t.interval)

	t.task(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped", "name", t.name)
			return
		case <-ticker.C:
			t.task(ctx)
		}
	}
}

// Stop cancels all tasks and blocks until their current passes complete.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
