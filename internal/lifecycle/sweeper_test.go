package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls   atomic.Int64
	removed int
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return c.removed
}

type panickingSweeper struct{}

func (panickingSweeper) Sweep() int { panic("boom") }

func TestRunner_AddValidation(t *testing.T) {
	r := NewRunner(nil)

	assert.Error(t, r.Add("nil", time.Second, nil))
	assert.Error(t, r.Add("zero", 0, &countingSweeper{}))
	assert.NoError(t, r.Add("ok", time.Second, &countingSweeper{}))
}

func TestRunner_StartRunsImmediateSweep(t *testing.T) {
	r := NewRunner(nil)
	s := &countingSweeper{removed: 2}
	require.NoError(t, r.Add("sessions", time.Hour, s))

	r.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	}()

	assert.EqualValues(t, 1, s.calls.Load())

	// Idempotent start.
	r.Start()
	assert.EqualValues(t, 1, s.calls.Load())
}

func TestRunner_AddAfterStartFails(t *testing.T) {
	r := NewRunner(nil)
	require.NoError(t, r.Add("a", time.Hour, &countingSweeper{}))
	r.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	}()

	assert.Error(t, r.Add("late", time.Hour, &countingSweeper{}))
}

func TestRunner_RunOnce(t *testing.T) {
	r := NewRunner(nil)
	a := &countingSweeper{}
	b := &countingSweeper{removed: 1}
	require.NoError(t, r.Add("a", time.Hour, a))
	require.NoError(t, r.Add("b", time.Hour, b))

	r.RunOnce()
	r.RunOnce()

	assert.EqualValues(t, 2, a.calls.Load())
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestRunner_SweepPanicContained(t *testing.T) {
	r := NewRunner(nil)
	after := &countingSweeper{}
	require.NoError(t, r.Add("panics", time.Hour, panickingSweeper{}))
	require.NoError(t, r.Add("after", time.Hour, after))

	assert.NotPanics(t, r.RunOnce)
	assert.EqualValues(t, 1, after.calls.Load())
}

func TestRunner_StopWithoutStart(t *testing.T) {
	r := NewRunner(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}
