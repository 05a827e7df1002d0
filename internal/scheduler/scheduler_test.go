package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	failures int32 // runs that fail before the first success
	calls    atomic.Int32
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("upstream unavailable")
	}
	return nil
}

func TestAddJob(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 30 2 * * *"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&fakeJob{name: "c", schedule: "every night"}), "bad schedule")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	next, err := s.NextRun("b")
	require.NoError(t, err)
	assert.True(t, next.IsZero(), "not started")
}

func TestRemoveJob(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(&fakeJob{name: "warm", schedule: "@daily"}))

	require.NoError(t, s.RemoveJob("warm"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("warm"))

	_, err := s.RunJob(context.Background(), "warm")
	assert.Error(t, err)
}

func TestRunJob_Retries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		wantSuccess bool
		wantCalls   int32
	}{
		{"first try", 0, true, 1},
		{"succeeds on retry", 2, true, 3},
		{"gives up", 10, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(logger.Nop(), WithRetry(2, time.Millisecond))
			job := &fakeJob{name: "warm", schedule: "@daily", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunJob(context.Background(), "warm")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantCalls, job.calls.Load())
			if !tt.wantSuccess {
				assert.Equal(t, "upstream unavailable", result.Error)
			}

			history, err := s.GetJobHistory("warm")
			require.NoError(t, err)
			assert.Len(t, history.Results, 1)
		})
	}
}

func TestRunJob_CancelledStopsRetrying(t *testing.T) {
	s := New(logger.Nop(), WithRetry(5, time.Hour))
	job := &fakeJob{name: "warm", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunJob(ctx, "warm")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestGetJobStats(t *testing.T) {
	s := New(logger.Nop(), WithRetry(0, 0))
	ok := &fakeJob{name: "ok", schedule: "@daily"}
	bad := &fakeJob{name: "bad", schedule: "@hourly", failures: 100}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	ctx := context.Background()
	_, _ = s.RunJob(ctx, "ok")
	_, _ = s.RunJob(ctx, "ok")
	_, _ = s.RunJob(ctx, "bad")

	stats := s.GetJobStats()
	require.Len(t, stats, 2)

	assert.Equal(t, 2, stats["ok"].TotalRuns)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)
	assert.Nil(t, stats["ok"].LastFailure)

	assert.Equal(t, "@hourly", stats["bad"].Schedule)
	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
}

func TestStartStop(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(&fakeJob{name: "warm", schedule: "@daily"}))

	s.Start()
	next, err := s.NextRun("warm")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
	s.Stop()
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Empty(t, h.GetLatestResults(5))
	assert.Equal(t, 0.0, h.GetSuccessRate())

	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{JobName: "warm", Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), maxHistory/2)
	assert.Equal(t, 0.5, h.GetSuccessRate())
}
