// Package janitor periodically removes expired rows and in-memory entries.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task removes stale data and reports how many items it dropped.
type Task struct {
	Name string
	Run  func() (int64, error)
}

type Janitor struct {
	clock    clockwork.Clock
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger
}

func New(clock clockwork.Clock, interval time.Duration, logger *slog.Logger, tasks ...Task) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{
		clock:    clock,
		interval: interval,
		tasks:    tasks,
		logger:   logger,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			j.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs every task once. A failing task does not stop the others.
func (j *Janitor) Sweep() int64 {
	var total int64
	for _, t := range j.tasks {
		n, err := t.Run()
		if err != nil {
			j.logger.Error("cleanup failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			j.logger.Info("cleaned up", "task", t.Name, "count", n)
		}
		total += n
	}
	return total
}
