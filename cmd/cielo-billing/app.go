package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/vilosource/cielo-azure-billing/internal/blob"
	"github.com/vilosource/cielo-azure-billing/internal/blobsource"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	"github.com/vilosource/cielo-azure-billing/internal/costentry"
	"github.com/vilosource/cielo-azure-billing/internal/customer"
	"github.com/vilosource/cielo-azure-billing/internal/ingest"
	"github.com/vilosource/cielo-azure-billing/internal/meter"
	"github.com/vilosource/cielo-azure-billing/internal/migration"
	"github.com/vilosource/cielo-azure-billing/internal/observability"
	"github.com/vilosource/cielo-azure-billing/internal/resource"
	"github.com/vilosource/cielo-azure-billing/internal/snapshot"
	"github.com/vilosource/cielo-azure-billing/internal/subscription"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	applog "github.com/vilosource/cielo-azure-billing/pkg/log"
	"go.uber.org/fx"
)

// coreModules is shared by every command: configuration, logging,
// database with migrations applied, ids and time.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		applog.FxLogger,
	)
}

func domainModules() fx.Option {
	return fx.Options(
		blobsource.Module,
		customer.Module,
		subscription.Module,
		resource.Module,
		meter.Module,
		snapshot.Module,
		costentry.Module,
	)
}

// ingestModules adds the importer and the blob pipeline, and keeps the
// sources table synced with the sources file.
func ingestModules() fx.Option {
	return fx.Options(
		ingest.Module,
		blob.Module,
		blobsource.SyncModule,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// runTask builds an application from opts, starts it, runs fn and stops it.
// Targets for fn are pulled out of the graph with fx.Populate.
func runTask(ctx context.Context, fn func(context.Context) error, opts ...fx.Option) error {
	app := fx.New(append([]fx.Option{coreModules()}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}
