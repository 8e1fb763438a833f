package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sealbox/sealbox/internal/actions"
	"github.com/sealbox/sealbox/internal/browser"
	"github.com/sealbox/sealbox/internal/expressions"
	"github.com/sealbox/sealbox/internal/logging"
	"github.com/sealbox/sealbox/internal/validation"
	"github.com/sealbox/sealbox/pkg/schema"
)

const (
	defaultMaxConcurrent = 3
	defaultJobTTL        = 2 * time.Minute
	defaultGraceWindow   = 30 * time.Second

	// successWhenParam is a reserved param: an expression over the action
	// output that must hold for the job to complete successfully.
	successWhenParam = "success_when"
)

// Config configures the Scheduler.
type Config struct {
	MaxConcurrent int           // ceiling on jobs in Running state (default 3)
	JobTTL        time.Duration // deadline per job (default 2m)
	GraceWindow   time.Duration // how long terminal jobs stay queryable (default 30s)
}

// Scheduler owns the job registry and the browser profile pool. Submit and
// PollStatus return promptly; all blocking happens inside job task bodies.
type Scheduler struct {
	cfg       Config
	logger    *slog.Logger
	registry  *actions.Registry
	pool      *browser.Pool
	validator *validation.InputValidator
	interp    *expressions.Interpolator
	cond      *expressions.ExprEngine

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. The interpolator may be nil when secret
// references in params are not needed.
func NewScheduler(cfg Config, registry *actions.Registry, pool *browser.Pool, interp *expressions.Interpolator, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = defaultJobTTL
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Scheduler{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		pool:      pool,
		validator: validation.NewInputValidator(),
		interp:    interp,
		cond:      expressions.NewExprEngine(),
		jobs:      make(map[string]*Job),
	}
}

// Submit starts an automation job and returns its id without waiting for the
// task. Capacity and resource-acquisition failures are the only errors
// surfaced synchronously; action execution errors are captured per-job.
func (s *Scheduler) Submit(ctx context.Context, serviceName, actionName string, params map[string]any) (string, error) {
	if actionName == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "action name is required")
	}
	action, err := s.registry.Resolve(serviceName, actionName)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", schema.NewError(schema.ErrCodeExecution, "scheduler is shut down")
	}
	// Reclaim before counting so expired jobs don't hold capacity.
	s.sweepLocked(time.Now())
	if s.runningLocked() >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return "", schema.NewErrorf(schema.ErrCodeCapacityExceeded,
			"%d automation jobs already running", s.cfg.MaxConcurrent)
	}

	profile, err := s.pool.Acquire()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	now := time.Now()
	taskCtx, cancel := context.WithDeadline(context.Background(), now.Add(s.cfg.JobTTL))
	job := &Job{
		ID:          uuid.NewString(),
		ServiceName: serviceName,
		ActionName:  action.Name(),
		Status:      StatusRunning,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.JobTTL),
		profile:     profile,
		cancel:      cancel,
	}
	s.jobs[job.ID] = job
	s.wg.Add(1)
	s.mu.Unlock()

	logCtx := logging.WithJobID(context.Background(), job.ID)
	s.logger.InfoContext(logCtx, "job submitted",
		slog.String("service", serviceName),
		slog.String("action", action.Name()),
		slog.String("profile", profile.ID))

	go s.run(taskCtx, job.ID, profile, action, params)
	return job.ID, nil
}

// run is the job task body. The profile is handed over by Submit; the mutable
// job.profile field is only ever touched under s.mu. Every exit path releases
// the profile via finish.
func (s *Scheduler) run(ctx context.Context, jobID string, profile *browser.Profile, action actions.Action, params map[string]any) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.finish(jobID, nil, schema.NewErrorf(schema.ErrCodeExecution, "action panicked: %v", r))
		}
	}()

	ctx = logging.WithJobID(ctx, jobID)

	successWhen := ""
	if params != nil {
		successWhen, _ = params[successWhenParam].(string)
		if successWhen != "" {
			clone := make(map[string]any, len(params))
			for k, v := range params {
				clone[k] = v
			}
			delete(clone, successWhenParam)
			params = clone
		}
	}

	if s.interp != nil {
		resolved, err := s.interp.ResolveParams(ctx, params)
		if err != nil {
			s.finish(jobID, nil, err)
			return
		}
		params = resolved
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := s.validator.ValidateInput(params, action.Schema().InputSchema); err != nil {
		s.finish(jobID, nil, err)
		return
	}

	// A sweep may have reclaimed the job while interpolation or validation
	// blocked; the profile is back in the pool and must not be driven again.
	if !s.live(jobID) {
		return
	}

	out, err := action.Execute(ctx, actions.ActionInput{Params: params, Profile: profile})
	if err != nil {
		s.finish(jobID, nil, err)
		return
	}

	if successWhen != "" {
		var env map[string]any
		if uerr := json.Unmarshal(out.Data, &env); uerr != nil {
			env = map[string]any{}
		}
		ok, cerr := s.cond.EvaluateBool(ctx, successWhen, env)
		if cerr != nil {
			s.finish(jobID, nil, cerr)
			return
		}
		if !ok {
			s.finish(jobID, out.Data, schema.NewErrorf(schema.ErrCodeExecution,
				"success condition %q not met", successWhen))
			return
		}
	}

	s.finish(jobID, out.Data, nil)
}

// live reports whether a job is still present and running.
func (s *Scheduler) live(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return ok && !job.terminal()
}

// finish records the task's terminal state and releases its resource. A job
// already reclaimed by the sweeper is left alone.
func (s *Scheduler) finish(jobID string, result []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.terminal() {
		return
	}

	logCtx := logging.WithJobID(context.Background(), jobID)
	job.FinishedAt = time.Now()
	job.cancel()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.Result = result
		s.logger.InfoContext(logCtx, "job failed", slog.String("error", job.Error))
	} else {
		job.Status = StatusCompleted
		job.Result = result
		s.logger.InfoContext(logCtx, "job completed")
	}

	s.pool.Release(job.profile)
	job.profile = nil
}

// PollStatus reports the state of a job. An expired job is purged and
// reported as EXPIRED; terminal jobs stay queryable for the grace window.
func (s *Scheduler) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job %q not found", jobID)
	}

	now := time.Now()
	if job.Status == StatusRunning && now.After(job.ExpiresAt) {
		s.reclaimLocked(job)
		delete(s.jobs, jobID)
		return nil, schema.NewErrorf(schema.ErrCodeExpired, "job %q expired", jobID)
	}
	if job.terminal() && now.After(job.FinishedAt.Add(s.cfg.GraceWindow)) {
		delete(s.jobs, jobID)
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job %q not found", jobID)
	}

	return &JobStatus{
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
		Error:  job.Error,
	}, nil
}

// Sweep force-releases resources of jobs past their deadline and purges
// terminal jobs past the grace window. Safe to call concurrently; returns
// the number of jobs removed.
func (s *Scheduler) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(time.Now())
}

func (s *Scheduler) sweepLocked(now time.Time) int {
	removed := 0
	for id, job := range s.jobs {
		switch {
		case job.Status == StatusRunning && now.After(job.ExpiresAt):
			s.reclaimLocked(job)
			delete(s.jobs, id)
			removed++
			s.logger.WarnContext(logging.WithJobID(context.Background(), id), "job reclaimed by sweep")
		case job.terminal() && now.After(job.FinishedAt.Add(s.cfg.GraceWindow)):
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// reclaimLocked cancels a runaway task and takes its resource back. The task
// goroutine is abandoned; its later finish call finds the job gone.
func (s *Scheduler) reclaimLocked(job *Job) {
	job.cancel()
	job.Status = StatusFailed
	job.Error = "deadline exceeded"
	job.FinishedAt = time.Now()
	s.pool.Release(job.profile)
	job.profile = nil
}

// Running returns the number of jobs currently in Running state.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() int {
	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Stop prevents new submissions, cancels running tasks and waits for their
// goroutines to drain.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, job := range s.jobs {
		if job.Status == StatusRunning {
			job.cancel()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}
