package jobs

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/internal/actions"
	"github.com/sealbox/sealbox/internal/browser"
	"github.com/sealbox/sealbox/internal/expressions"
	"github.com/sealbox/sealbox/pkg/schema"
)

type testAction struct {
	name string
	fn   func(ctx context.Context, input actions.ActionInput) (*actions.ActionOutput, error)
}

func (a *testAction) Name() string                  { return a.name }
func (a *testAction) Schema() actions.ActionSchema  { return actions.ActionSchema{} }
func (a *testAction) Validate(map[string]any) error { return nil }

func (a *testAction) Execute(ctx context.Context, input actions.ActionInput) (*actions.ActionOutput, error) {
	return a.fn(ctx, input)
}

func echoAction(name string, result map[string]any) *testAction {
	return &testAction{name: name, fn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		data, _ := json.Marshal(result)
		return &actions.ActionOutput{Data: data}, nil
	}}
}

// blockingAction runs until its context is cancelled or release is closed.
func blockingAction(name string, release <-chan struct{}) *testAction {
	return &testAction{name: name, fn: func(ctx context.Context, _ actions.ActionInput) (*actions.ActionOutput, error) {
		select {
		case <-release:
			return &actions.ActionOutput{Data: json.RawMessage(`{}`)}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
}

type testSecrets map[string]string

func (m testSecrets) SecretValue(_ context.Context, id string) (string, error) {
	v, ok := m[id]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", id)
	}
	return v, nil
}

type fixture struct {
	sched *Scheduler
	pool  *browser.Pool
	reg   *actions.Registry
}

func newFixture(t *testing.T, cfg Config, poolSize int, acts ...actions.Action) *fixture {
	t.Helper()
	pool, err := browser.NewPool(poolSize, t.TempDir(), nil)
	require.NoError(t, err)
	reg := actions.NewRegistry()
	for _, a := range acts {
		require.NoError(t, reg.Register(a))
	}
	sched := NewScheduler(cfg, reg, pool, expressions.NewInterpolator(testSecrets{"gh": "ghp_123"}), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return &fixture{sched: sched, pool: pool, reg: reg}
}

func pollUntilTerminal(t *testing.T, s *Scheduler, jobID string) *JobStatus {
	t.Helper()
	var st *JobStatus
	require.Eventually(t, func() bool {
		got, err := s.PollStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		st = got
		return got.Status != StatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestSubmitAndPoll_Completed(t *testing.T) {
	f := newFixture(t, Config{}, 1, echoAction("fetch", map[string]any{"value": "sk-1"}))

	jobID, err := f.sched.Submit(context.Background(), "", "fetch", nil)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	st := pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.JSONEq(t, `{"value":"sk-1"}`, string(st.Result))
	assert.Empty(t, st.Error)

	// Resource back at baseline after completion.
	require.Eventually(t, func() bool { return f.pool.InUse() == 0 }, time.Second, 5*time.Millisecond)

	// Terminal status remains queryable within the grace window.
	again, err := f.sched.PollStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestSubmitAndPoll_Failed(t *testing.T) {
	boom := &testAction{name: "boom", fn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		return nil, schema.NewError(schema.ErrCodeExecution, "provider said no")
	}}
	f := newFixture(t, Config{}, 1, boom)

	jobID, err := f.sched.Submit(context.Background(), "", "boom", nil)
	require.NoError(t, err)

	st := pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Contains(t, st.Error, "provider said no")
	require.Eventually(t, func() bool { return f.pool.InUse() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubmit_UnknownAction(t *testing.T) {
	f := newFixture(t, Config{}, 1)
	_, err := f.sched.Submit(context.Background(), "github", "no_such_action", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeActionUnavailable))
}

func TestSubmit_CapacityCeiling(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, Config{MaxConcurrent: 2}, 3, blockingAction("wait", release))
	ctx := context.Background()

	a, err := f.sched.Submit(ctx, "", "wait", nil)
	require.NoError(t, err)
	_, err = f.sched.Submit(ctx, "", "wait", nil)
	require.NoError(t, err)

	_, err = f.sched.Submit(ctx, "", "wait", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCapacityExceeded))

	// Freeing one running job frees capacity.
	close(release)
	pollUntilTerminal(t, f.sched, a)
	_, err = f.sched.Submit(ctx, "", "wait", nil)
	require.NoError(t, err)
}

func TestSubmit_ResourceExhausted(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, Config{MaxConcurrent: 5}, 1, blockingAction("wait", release))
	ctx := context.Background()

	_, err := f.sched.Submit(ctx, "", "wait", nil)
	require.NoError(t, err)

	_, err = f.sched.Submit(ctx, "", "wait", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeResource))
}

func TestPollStatus_NotFound(t *testing.T) {
	f := newFixture(t, Config{}, 1)
	_, err := f.sched.PollStatus(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestPollStatus_ExpiredRunningJob(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, Config{JobTTL: 20 * time.Millisecond}, 1, blockingAction("wait", release))

	jobID, err := f.sched.Submit(context.Background(), "", "wait", nil)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = f.sched.PollStatus(context.Background(), jobID)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpired))

	// Purged and resource released.
	_, err = f.sched.PollStatus(context.Background(), jobID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	require.Eventually(t, func() bool { return f.pool.InUse() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSweep_ReclaimsRunawayJob(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, Config{JobTTL: 20 * time.Millisecond}, 1, blockingAction("wait", release))

	jobID, err := f.sched.Submit(context.Background(), "", "wait", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.pool.InUse())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, f.sched.Sweep())
	assert.Zero(t, f.pool.InUse())
	assert.Zero(t, f.sched.Running())

	_, err = f.sched.PollStatus(context.Background(), jobID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// Sweeping again is a no-op.
	assert.Zero(t, f.sched.Sweep())
}

// gatedSecrets blocks every lookup until the gate closes, holding the task
// body in interpolation past its deadline.
type gatedSecrets struct {
	gate <-chan struct{}
}

func (g *gatedSecrets) SecretValue(context.Context, string) (string, error) {
	<-g.gate
	return "ghp_123", nil
}

func TestSweep_ReclaimedJobNeverExecutes(t *testing.T) {
	gate := make(chan struct{})
	var executions int32
	capture := &testAction{name: "capture", fn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		atomic.AddInt32(&executions, 1)
		return &actions.ActionOutput{Data: json.RawMessage(`{}`)}, nil
	}}

	pool, err := browser.NewPool(1, t.TempDir(), nil)
	require.NoError(t, err)
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(capture))
	sched := NewScheduler(Config{JobTTL: 20 * time.Millisecond}, reg, pool,
		expressions.NewInterpolator(&gatedSecrets{gate: gate}), nil)

	_, err = sched.Submit(context.Background(), "", "capture", map[string]any{
		"auth": "${{secrets.gh}}",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.InUse())

	// The task is parked in interpolation when the deadline passes and the
	// sweep takes the profile back.
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, sched.Sweep())
	assert.Zero(t, pool.InUse())

	// Releasing the gate lets the abandoned task proceed; it must notice the
	// reclaim and never drive the re-issued profile.
	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(ctx))

	assert.Zero(t, atomic.LoadInt32(&executions))
	assert.Zero(t, pool.InUse())
}

func TestSweep_PurgesTerminalAfterGrace(t *testing.T) {
	f := newFixture(t, Config{GraceWindow: 20 * time.Millisecond}, 1, echoAction("fetch", map[string]any{"value": "x"}))

	jobID, err := f.sched.Submit(context.Background(), "", "fetch", nil)
	require.NoError(t, err)
	pollUntilTerminal(t, f.sched, jobID)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, f.sched.Sweep())

	_, err = f.sched.PollStatus(context.Background(), jobID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSubmit_SecretInterpolation(t *testing.T) {
	var seen string
	capture := &testAction{name: "capture", fn: func(_ context.Context, input actions.ActionInput) (*actions.ActionOutput, error) {
		seen, _ = input.Params["auth"].(string)
		return &actions.ActionOutput{Data: json.RawMessage(`{}`)}, nil
	}}
	f := newFixture(t, Config{}, 1, capture)

	jobID, err := f.sched.Submit(context.Background(), "", "capture", map[string]any{
		"auth": "Bearer ${{secrets.gh}}",
	})
	require.NoError(t, err)
	pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, "Bearer ghp_123", seen)
}

func TestSubmit_SuccessCondition(t *testing.T) {
	f := newFixture(t, Config{}, 2,
		echoAction("good", map[string]any{"value": "ok", "status_code": 200}),
	)
	ctx := context.Background()

	jobID, err := f.sched.Submit(ctx, "", "good", map[string]any{
		"success_when": `status_code == 200 && value != ""`,
	})
	require.NoError(t, err)
	st := pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, StatusCompleted, st.Status)

	jobID, err = f.sched.Submit(ctx, "", "good", map[string]any{
		"success_when": `status_code == 201`,
	})
	require.NoError(t, err)
	st = pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Contains(t, st.Error, "success condition")
}

func TestRun_PanicCaptured(t *testing.T) {
	panicky := &testAction{name: "panic", fn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		panic("unexpected page layout")
	}}
	f := newFixture(t, Config{}, 1, panicky)

	jobID, err := f.sched.Submit(context.Background(), "", "panic", nil)
	require.NoError(t, err)

	st := pollUntilTerminal(t, f.sched, jobID)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Contains(t, st.Error, "panicked")
	require.Eventually(t, func() bool { return f.pool.InUse() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStop_RejectsNewSubmissions(t *testing.T) {
	f := newFixture(t, Config{}, 1, echoAction("fetch", nil))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))

	_, err := f.sched.Submit(context.Background(), "", "fetch", nil)
	require.Error(t, err)
}
