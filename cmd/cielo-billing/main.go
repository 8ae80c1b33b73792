package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	applog "github.com/vilosource/cielo-azure-billing/pkg/log"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "cielo-billing",
	Short:         "Azure cost export ingestion and reporting",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if verbose {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	time.Local = time.UTC

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level application logs")
	rootCmd.AddCommand(
		newServeCmd(),
		newSchedulerCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newFetchCmd(),
		newInspectCmd(),
		newDownloadCmd(),
		newBackfillResourceNamesCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := applog.NewCLI(verbose)
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
