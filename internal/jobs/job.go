// Package jobs runs bounded-concurrency, time-boxed automation tasks that
// produce secrets. Submission is fire-and-forget; callers poll for status.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sealbox/sealbox/internal/browser"
)

// Status is the lifecycle state of an automation job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one automation task. The profile is exclusively owned by the job
// until it reaches a terminal state or its deadline is force-reclaimed.
type Job struct {
	ID          string
	ServiceName string
	ActionName  string

	Status     Status
	Result     json.RawMessage
	Error      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	FinishedAt time.Time

	profile *browser.Profile
	cancel  context.CancelFunc
}

func (j *Job) terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// JobStatus is the poll response snapshot.
type JobStatus struct {
	JobID  string          `json:"job_id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
