package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingJob counts runs and blocks each one until released or cancelled.
type blockingJob struct {
	runs    atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	release chan struct{}
}

func newBlockingJob() *blockingJob {
	return &blockingJob{release: make(chan struct{})}
}

func (j *blockingJob) Run(ctx context.Context) RunReport {
	j.runs.Add(1)
	if j.active.Add(1) > 1 {
		j.overlap.Store(true)
	}
	defer j.active.Add(-1)

	select {
	case <-ctx.Done():
	case <-j.release:
	}
	return RunReport{}
}

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Run(ctx context.Context) RunReport {
	j.runs.Add(1)
	return RunReport{}
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New("not a schedule", &countingJob{}, false)
	assert.Error(t, err)

	_, err = New("@every 24h", nil, false)
	assert.Error(t, err)
}

func TestSchedulerRunOnStart(t *testing.T) {
	job := &countingJob{}
	s, err := New("@every 24h", job, true)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, s.IsRunning())

	next := s.NextRun()
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), next, time.Minute)
}

func TestSchedulerWithoutRunOnStart(t *testing.T) {
	job := &countingJob{}
	s, err := New("@every 24h", job, false)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}

func TestSchedulerRepeats(t *testing.T) {
	job := &countingJob{}
	s, err := New("@every 1s", job, false)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 3500*time.Millisecond, 50*time.Millisecond)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	job := newBlockingJob()
	s, err := New("@every 1s", job, true)
	require.NoError(t, err)

	require.NoError(t, s.Start())

	// the first run blocks across at least two ticks
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())
	assert.False(t, job.overlap.Load())

	require.NoError(t, s.Stop())
}

func TestSchedulerStopCancelsRun(t *testing.T) {
	job := newBlockingJob()
	s, err := New("@every 24h", job, true)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return job.active.Load() == 1 }, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the run")
	}
	assert.False(t, s.IsRunning())
	assert.True(t, s.NextRun().IsZero())
	assert.Zero(t, job.active.Load())
}

func TestSchedulerDoubleStart(t *testing.T) {
	s, err := New("@every 24h", &countingJob{}, false)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Error(t, s.Start())
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s, err := New("@every 24h", &countingJob{}, false)
	require.NoError(t, err)

	assert.NoError(t, s.Stop())
	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}
