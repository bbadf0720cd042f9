package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOptimizer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeOptimizer) Optimize(ctx context.Context) error {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	return f.err
}

func TestScheduler_EmptyScheduleDisabled(t *testing.T) {
	s := New(&fakeOptimizer{}, "", time.Second)

	started, err := s.Start()
	require.NoError(t, err)
	assert.False(t, started)
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(&fakeOptimizer{}, "every tuesday", time.Second)

	started, err := s.Start()
	assert.Error(t, err)
	assert.False(t, started)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(&fakeOptimizer{}, DefaultSchedule, time.Second)

	started, err := s.Start()
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, s.NextRun().After(time.Now()))

	started, err = s.Start()
	require.NoError(t, err)
	assert.True(t, started)

	s.Stop()
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	opt := &fakeOptimizer{}
	s := New(opt, "@every 1s", time.Second)

	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	require.Eventually(t, func() bool { return opt.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	last, lastErr := s.LastRun()
	assert.False(t, last.IsZero())
	assert.NoError(t, lastErr)
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	opt := &fakeOptimizer{err: errors.New("database is locked")}
	s := New(opt, "", 0)

	err := s.RunNow(context.Background())
	assert.EqualError(t, err, "database is locked")

	last, lastErr := s.LastRun()
	assert.False(t, last.IsZero())
	assert.EqualError(t, lastErr, "database is locked")
	assert.Equal(t, int32(1), opt.calls.Load())
}
