package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	billingmocks "github.com/smallbiznis/billingcore/internal/billing/domain/mocks"
	"github.com/smallbiznis/billingcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBillingJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	billing := billingmocks.NewMockService(ctrl)
	s, _ := newTestScheduler(t, Config{})

	schedule := config.DefaultBillingConfig().Jobs
	require.NoError(t, RegisterBillingJobs(s, billing, schedule))

	st := s.Status()
	require.Len(t, st.Jobs, len(BillingJobs))
	cadences := map[string]string{}
	for _, job := range st.Jobs {
		assert.True(t, IsBillingJob(job.Name), job.Name)
		cadences[job.Name] = job.Cadence
	}
	assert.Equal(t, "0 0 * * *", cadences[JobDailyInvoiceGeneration])
	assert.Equal(t, "5 0 * * *", cadences[JobProcessPlanChanges])
	assert.Equal(t, "10 0 * * *", cadences[JobProcessCancellations])
	assert.Equal(t, "0 * * * *", cadences[JobFinalizeDraftInvoices])
	assert.Equal(t, "0 9 * * *", cadences[JobPaymentReminders])
	assert.Equal(t, "0 3 * * 0", cadences[JobWeeklyCleanup])
	assert.False(t, IsBillingJob("drop-tables"))
}

func TestDailyJobsUseToday(t *testing.T) {
	ctrl := gomock.NewController(t)
	billing := billingmocks.NewMockService(ctrl)
	s, _ := newTestScheduler(t, Config{})
	require.NoError(t, RegisterBillingJobs(s, billing, config.DefaultBillingConfig().Jobs))

	today := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)
	billing.EXPECT().RenewDueSubscriptions(gomock.Any(), today).Return(billingdomain.BatchResult{
		Success: 4,
		Failed:  1,
		Errors:  []string{"3: version_conflict"},
		Items: []billingdomain.BatchItem{
			{ID: "1", Status: billingdomain.ItemSuccess},
			{ID: "3", Status: billingdomain.ItemFailed, Error: "version_conflict"},
		},
	}, nil)
	billing.EXPECT().ProcessScheduledPlanChanges(gomock.Any(), today).Return(billingdomain.BatchResult{Skipped: 2}, nil)
	billing.EXPECT().ProcessScheduledCancellations(gomock.Any(), today).Return(billingdomain.BatchResult{}, errors.New("db down"))

	res, err := s.RunNow(context.Background(), JobDailyInvoiceGeneration)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"3: version_conflict"}, res.Errors)

	res, err = s.RunNow(context.Background(), JobProcessPlanChanges)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)

	_, err = s.RunNow(context.Background(), JobProcessCancellations)
	assert.EqualError(t, err, "db down")
	assert.Equal(t, "db down", statusOf(t, s, JobProcessCancellations).LastError)
}

func TestHourlyJobsUseNow(t *testing.T) {
	ctrl := gomock.NewController(t)
	billing := billingmocks.NewMockService(ctrl)
	s, fc := newTestScheduler(t, Config{})
	require.NoError(t, RegisterBillingJobs(s, billing, config.DefaultBillingConfig().Jobs))

	billing.EXPECT().FinalizeStaleDrafts(gomock.Any(), fc.Now()).Return(billingdomain.BatchResult{Success: 3}, nil)
	billing.EXPECT().SendPaymentReminders(gomock.Any(), fc.Now()).Return(billingdomain.BatchResult{Success: 1}, nil)

	res, err := s.RunNow(context.Background(), JobFinalizeDraftInvoices)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Success)

	res, err = s.RunNow(context.Background(), JobPaymentReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
}

func TestWeeklyCleanupReportsStepFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	billing := billingmocks.NewMockService(ctrl)
	s, fc := newTestScheduler(t, Config{})
	require.NoError(t, RegisterBillingJobs(s, billing, config.DefaultBillingConfig().Jobs))

	billing.EXPECT().Cleanup(gomock.Any(), fc.Now()).Return(billingdomain.CleanupResult{
		ArchivedInvoices:    5,
		PurgedDraftInvoices: 1,
		KeptDraftInvoices:   2,
		Errors:              []string{"archive_journal_entries: timeout"},
	}, errors.New("timeout"))

	res, err := s.RunNow(context.Background(), JobWeeklyCleanup)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Success)
	assert.Equal(t, 1, res.Failed)
	details, ok := res.Details.(billingdomain.CleanupResult)
	require.True(t, ok)
	assert.Equal(t, int64(2), details.KeptDraftInvoices)
}

func statusOf(t *testing.T, s *Scheduler, name string) JobStatus {
	t.Helper()
	for _, job := range s.Status().Jobs {
		if job.Name == name {
			return job
		}
	}
	t.Fatalf("job %s not registered", name)
	return JobStatus{}
}
