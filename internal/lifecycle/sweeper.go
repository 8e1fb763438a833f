// Package lifecycle runs the periodic cleanup sweeps that bound memory and
// reclaim leaked resources: OAuth session expiry and automation job expiry.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is anything with a periodic cleanup pass. Sweep returns the number
// of entries removed.
type Sweeper interface {
	Sweep() int
}

type entry struct {
	name    string
	sweeper Sweeper
}

// Runner schedules all sweepers on one shared cron scheduler. Sweep errors
// never stop the runner; each entry logs and continues.
type Runner struct {
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries []entry
	started bool
}

// NewRunner creates an empty Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Runner{
		logger: logger,
		cron:   cron.New(),
	}
}

// Add registers a sweeper to run at the given interval. Must be called
// before Start.
func (r *Runner) Add(name string, every time.Duration, s Sweeper) error {
	if s == nil {
		return fmt.Errorf("sweeper %q is nil", name)
	}
	if every <= 0 {
		return fmt.Errorf("sweeper %q: interval must be positive", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("sweeper %q: runner already started", name)
	}

	spec := fmt.Sprintf("@every %s", every)
	if _, err := r.cron.AddFunc(spec, func() { r.runSweep(name, s) }); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", name, err)
	}
	r.entries = append(r.entries, entry{name: name, sweeper: s})
	return nil
}

// Start runs an immediate sweep of every entry, then begins the periodic
// schedule.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for _, e := range entries {
		r.runSweep(e.name, e.sweeper)
	}
	r.cron.Start()
	r.logger.Info("sweep runner started", slog.Int("entries", len(entries)))
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (r *Runner) Stop(ctx context.Context) error {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
		r.logger.Info("sweep runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweep runner shutdown: %w", ctx.Err())
	}
}

// RunOnce sweeps every entry immediately, outside the schedule.
func (r *Runner) RunOnce() {
	r.mu.Lock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for _, e := range entries {
		r.runSweep(e.name, e.sweeper)
	}
}

func (r *Runner) runSweep(name string, s Sweeper) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("sweep panicked", slog.String("sweeper", name), slog.Any("panic", rec))
		}
	}()

	if removed := s.Sweep(); removed > 0 {
		r.logger.Info("sweep removed entries", slog.String("sweeper", name), slog.Int("removed", removed))
	}
}
