package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vilosource/cielo-azure-billing/internal/metricspush"
	"github.com/vilosource/cielo-azure-billing/internal/scheduler"
	"github.com/vilosource/cielo-azure-billing/internal/server"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cost query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []fx.Option{coreModules(), domainModules(), server.Module}
			if withScheduler {
				opts = append(opts, ingestModules(), scheduler.Module)
			}
			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the periodic blob fetch in this process")
	return cmd
}

func newSchedulerCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Fetch all active blob sources on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if once {
				var sched *scheduler.Scheduler
				return runTask(cmd.Context(), func(ctx context.Context) error {
					return sched.RunOnce(ctx)
				},
					domainModules(),
					ingestModules(),
					scheduler.RunnerModule,
					metricspush.Module,
					fx.Populate(&sched),
				)
			}

			app := fx.New(coreModules(), domainModules(), ingestModules(), scheduler.Module)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single fetch of every active source and exit")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd.Context(), func(context.Context) error {
				cmd.Println("migrations applied")
				return nil
			})
		},
	}
}
