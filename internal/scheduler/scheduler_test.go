package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/billingcore/internal/clock"
	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	fc := clock.NewFakeClock(time.Date(2024, 4, 11, 9, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:     zap.NewNop(),
		Clock:   fc,
		Metrics: obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry(), obsmetrics.Config{Environment: "test"}),
		Config:  cfg,
	})
	require.NoError(t, err)
	return s, fc
}

func okHandler(result JobResult) Handler {
	return func(context.Context) (JobResult, error) { return result, nil }
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegisterValidates(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	require.NoError(t, s.Register("nightly", "0 0 * * *", okHandler(JobResult{})))
	assert.ErrorIs(t, s.Register("nightly", "0 1 * * *", okHandler(JobResult{})), ErrDuplicateJob)
	assert.ErrorIs(t, s.Register("broken", "every day", okHandler(JobResult{})), ErrInvalidCadence)
	assert.ErrorIs(t, s.Register("", "0 0 * * *", okHandler(JobResult{})), ErrInvalidConfig)
}

func TestRunNowRecordsStatus(t *testing.T) {
	s, fc := newTestScheduler(t, Config{})
	require.NoError(t, s.Register("nightly", "0 0 * * *", func(context.Context) (JobResult, error) {
		fc.Advance(2 * time.Minute)
		return JobResult{Success: 4, Failed: 1, Errors: []string{"3: boom"}}, nil
	}))

	res, err := s.RunNow(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Success)
	assert.Equal(t, 1, res.Failed)

	st := s.Status()
	require.Len(t, st.Jobs, 1)
	job := st.Jobs[0]
	assert.False(t, st.Running)
	assert.False(t, job.Running)
	assert.Equal(t, int64(1), job.RunCount)
	require.NotNil(t, job.LastStartedAt)
	require.NotNil(t, job.LastFinishedAt)
	assert.Equal(t, time.Date(2024, 4, 11, 9, 0, 0, 0, time.UTC), *job.LastStartedAt)
	assert.Equal(t, time.Date(2024, 4, 11, 9, 2, 0, 0, time.UTC), *job.LastFinishedAt)
	require.NotNil(t, job.LastResult)
	assert.Equal(t, []string{"3: boom"}, job.LastResult.Errors)
	assert.Empty(t, job.LastError)
	assert.Nil(t, job.NextRunAt)
}

func TestRunNowUnknownJob(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowRecoversPanic(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	calls := 0
	require.NoError(t, s.Register("flaky", "@hourly", func(context.Context) (JobResult, error) {
		calls++
		if calls == 1 {
			panic("nil subscription")
		}
		return JobResult{Success: 1}, nil
	}))

	res, err := s.RunNow(context.Background(), "flaky")
	require.Error(t, err)
	assert.ErrorIs(t, err, obsmetrics.ErrPanic)
	assert.Contains(t, res.Errors[0], "nil subscription")
	assert.Contains(t, s.Status().Jobs[0].LastError, "nil subscription")

	res, err = s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Empty(t, s.Status().Jobs[0].LastError)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("slow", "@daily", func(context.Context) (JobResult, error) {
		close(started)
		<-release
		return JobResult{Success: 1}, nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	assert.True(t, s.Status().Jobs[0].Running)
	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), s.Status().Jobs[0].RunCount)
}

func TestRunTimeoutCancelsContext(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Timeout: 20 * time.Millisecond})
	require.NoError(t, s.Register("stuck", "@daily", func(ctx context.Context) (JobResult, error) {
		<-ctx.Done()
		return JobResult{}, ctx.Err()
	}))

	_, err := s.RunNow(context.Background(), "stuck")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStartStopAndNextRun(t *testing.T) {
	s, fc := newTestScheduler(t, Config{})
	require.NoError(t, s.Register("nightly", "0 0 * * *", okHandler(JobResult{})))
	require.NoError(t, s.Register("hourly", "0 * * * *", okHandler(JobResult{})))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	st := s.Status()
	assert.True(t, st.Running)
	require.Len(t, st.Jobs, 2)
	assert.Equal(t, "hourly", st.Jobs[0].Name)
	require.NotNil(t, st.Jobs[0].NextRunAt)
	assert.Equal(t, time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC), *st.Jobs[0].NextRunAt)
	require.NotNil(t, st.Jobs[1].NextRunAt)
	assert.Equal(t, time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC), *st.Jobs[1].NextRunAt)

	fc.Set(time.Date(2024, 4, 12, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 4, 13, 0, 0, 0, 0, time.UTC), *s.Status().Jobs[1].NextRunAt)

	require.NoError(t, s.Pause("hourly"))
	st = s.Status()
	assert.False(t, st.Jobs[0].Enabled)
	assert.Nil(t, st.Jobs[0].NextRunAt)
	require.NoError(t, s.Resume("hourly"))
	assert.ErrorIs(t, s.Pause("missing"), ErrUnknownJob)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status().Running)
	assert.ErrorIs(t, s.Stop(ctx), ErrNotRunning)

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(ctx))
}
