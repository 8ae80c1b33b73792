package blobsource

import (
	"context"
	"time"

	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/blobsource/repository"
	"github.com/vilosource/cielo-azure-billing/internal/blobsource/service"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("blobsource.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// SyncModule keeps the blob_sources table in line with the sources file.
var SyncModule = fx.Module("blobsource.sync",
	fx.Invoke(syncFromConfig),
)

func syncFromConfig(lc fx.Lifecycle, holder *config.SourcesHolder, svc sourcedomain.Service, log *zap.Logger) {
	if !holder.Loaded() {
		return
	}
	log = log.Named("blobsource.sync")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.Sync(ctx, holder.Get()); err != nil {
				return err
			}
			holder.OnChange(func(defs []config.SourceDefinition) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := svc.Sync(ctx, defs); err != nil {
					log.Error("sync sources after reload failed", zap.Error(err))
				}
			})
			holder.Watch()
			return nil
		},
	})
}
