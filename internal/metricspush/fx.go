package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module pushes the default registry once when the application stops.
// One-shot commands include it so their job metrics outlive the process.
var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(pushOnStop),
)

func pushOnStop(lc fx.Lifecycle, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("metrics.push")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
				log.Warn("metrics push failed", zap.Error(err))
				return nil
			}
			log.Debug("metrics pushed")
			return nil
		},
	})
}
