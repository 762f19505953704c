package scheduler

import (
	"context"

	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
)

const (
	JobDailyInvoiceGeneration = "daily-invoice-generation"
	JobProcessPlanChanges     = "process-plan-changes"
	JobProcessCancellations   = "process-cancellations"
	JobFinalizeDraftInvoices  = "finalize-draft-invoices"
	JobPaymentReminders       = "payment-reminders"
	JobWeeklyCleanup          = "weekly-cleanup"
)

// BillingJobs lists the jobs that may be triggered by name.
var BillingJobs = []string{
	JobDailyInvoiceGeneration,
	JobProcessPlanChanges,
	JobProcessCancellations,
	JobFinalizeDraftInvoices,
	JobPaymentReminders,
	JobWeeklyCleanup,
}

func IsBillingJob(name string) bool {
	for _, candidate := range BillingJobs {
		if candidate == name {
			return true
		}
	}
	return false
}

// RegisterBillingJobs registers the recurring billing jobs on s using the
// cadences from schedule.
func RegisterBillingJobs(s *Scheduler, billing billingdomain.Service, schedule config.JobSchedule) error {
	jobs := []struct {
		name    string
		cadence string
		run     Handler
	}{
		{JobDailyInvoiceGeneration, schedule.GenerateInvoices, func(ctx context.Context) (JobResult, error) {
			return fromBatch(billing.RenewDueSubscriptions(ctx, clock.Today(s.clock)))
		}},
		{JobProcessPlanChanges, schedule.ProcessPlanChanges, func(ctx context.Context) (JobResult, error) {
			return fromBatch(billing.ProcessScheduledPlanChanges(ctx, clock.Today(s.clock)))
		}},
		{JobProcessCancellations, schedule.ProcessCancellations, func(ctx context.Context) (JobResult, error) {
			return fromBatch(billing.ProcessScheduledCancellations(ctx, clock.Today(s.clock)))
		}},
		{JobFinalizeDraftInvoices, schedule.FinalizeDrafts, func(ctx context.Context) (JobResult, error) {
			return fromBatch(billing.FinalizeStaleDrafts(ctx, s.clock.Now()))
		}},
		{JobPaymentReminders, schedule.PaymentReminders, func(ctx context.Context) (JobResult, error) {
			return fromBatch(billing.SendPaymentReminders(ctx, s.clock.Now()))
		}},
		{JobWeeklyCleanup, schedule.WeeklyCleanup, func(ctx context.Context) (JobResult, error) {
			res, err := billing.Cleanup(ctx, s.clock.Now())
			if err != nil && len(res.Errors) == 0 {
				return JobResult{Details: res}, err
			}
			// step failures are already itemised in res.Errors
			return fromCleanup(res), nil
		}},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.cadence, j.run); err != nil {
			return err
		}
	}
	return nil
}

func fromBatch(res billingdomain.BatchResult, err error) (JobResult, error) {
	return JobResult{
		Success: res.Success,
		Skipped: res.Skipped,
		Failed:  res.Failed,
		Errors:  res.Errors,
		Details: res.Items,
	}, err
}

func fromCleanup(res billingdomain.CleanupResult) JobResult {
	return JobResult{
		Success: int(res.ArchivedInvoices + res.ArchivedJournalEntries + res.PurgedDraftInvoices + res.PurgedAdjustments),
		Failed:  len(res.Errors),
		Errors:  res.Errors,
		Details: res,
	}
}
