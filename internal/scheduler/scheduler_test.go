package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	runs    atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestAddJob_DuplicateName(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 * * *", &countingJob{name: "refresh"}))
	assert.Error(t, s.AddJob("0 1 * * *", &countingJob{name: "refresh"}))
}

func TestAddJob_DailySchedule(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 * * *", &countingJob{name: "refresh"}))

	s.Start()
	defer s.Stop()

	next := s.NextRun("refresh")
	require.False(t, next.IsZero())
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestScheduledRun(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "refresh"}
	require.NoError(t, s.AddJob("0 0 * * *", job))

	require.NoError(t, s.RunNow("refresh"))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestRunNow_PropagatesError(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 * * *", &countingJob{name: "refresh", err: errors.New("boom")}))

	assert.EqualError(t, s.RunNow("refresh"), "boom")
}

func TestRunNow_UnknownJob(t *testing.T) {
	s := New(zerolog.Nop())
	assert.ErrorIs(t, s.RunNow("missing"), ErrJobNotFound)
}

func TestRunNow_DoesNotOverlap(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "refresh", block: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob("0 0 * * *", job))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("refresh") }()
	<-job.started

	assert.ErrorIs(t, s.RunNow("refresh"), ErrJobRunning)

	close(job.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), job.runs.Load())
}
