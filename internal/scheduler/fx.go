package scheduler

import (
	"context"

	"github.com/vilosource/cielo-azure-billing/internal/blob"
	"go.uber.org/fx"
)

var providers = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(func(f *blob.Fetcher) SourceFetcher { return f }),
	fx.Provide(New),
)

// Module runs the scheduler on its cron schedule for the app lifetime.
var Module = fx.Module("scheduler",
	providers,
	fx.Invoke(NewScheduler),
)

// RunnerModule provides the Scheduler for one-shot runs without the cron.
var RunnerModule = fx.Module("scheduler.runner",
	providers,
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
