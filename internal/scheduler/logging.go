package scheduler

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/smallbiznis/billingcore/pkg/log/ctxlogger"
	"github.com/smallbiznis/billingcore/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	triggerCron   = "cron"
	triggerManual = "manual"
)

type jobRun struct {
	job       string
	runID     string
	trigger   string
	startedAt time.Time
}

func (s *Scheduler) newJobRun(ctx context.Context, job, trigger string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     correlation.NewID(),
		trigger:   trigger,
		startedAt: time.Now(),
	}
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	ctx = ctxlogger.ContextWithFields(ctx,
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("actor", "system"),
	)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start", zap.String("trigger", run.trigger))
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun, result JobResult, err error) {
	fields := []zap.Field{
		zap.String("trigger", run.trigger),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", result.Success),
		zap.Int("skipped_count", result.Skipped),
		zap.Int("error_count", result.Failed),
	}
	log := s.logger(ctx)
	if err != nil {
		log.Error("scheduler.job.finish", append(fields,
			zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
			zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
			zap.Error(err),
		)...)
		return
	}
	if result.Failed > 0 {
		for _, msg := range result.Errors {
			log.Error("scheduler.item.failed", zap.String("error", msg))
		}
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}
