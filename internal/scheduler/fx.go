package scheduler

import (
	"context"

	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"github.com/smallbiznis/billingcore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(registerJobs),
	fx.Invoke(NewScheduler),
)

func registerJobs(s *Scheduler, billing billingdomain.Service, holder *config.BillingConfigHolder) error {
	return RegisterBillingJobs(s, billing, holder.Get().Jobs)
}

// NewScheduler ties the cron loop to the application lifecycle. With
// SCHEDULER_ENABLED=false the jobs stay registered for manual runs only.
func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.SchedulerEnabled {
		log.Info("scheduler disabled; jobs available for manual runs")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			if !sched.IsRunning() {
				return nil
			}
			return sched.Stop(ctx)
		},
	})
}
