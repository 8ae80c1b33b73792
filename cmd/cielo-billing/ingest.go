package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/vilosource/cielo-azure-billing/internal/blob"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	"github.com/vilosource/cielo-azure-billing/internal/metricspush"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"go.uber.org/fx"
)

type importOptions struct {
	runID      string
	reportDate string
	manifest   string
	sourceName string
	overwrite  bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a cost export CSV file as a new snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(args[0])
			if err != nil {
				return err
			}

			var (
				importer  ingestdomain.Importer
				sources   sourcedomain.Service
				snapshots snapshotdomain.Service
			)
			return runTask(cmd.Context(), func(ctx context.Context) error {
				if opts.sourceName != "" {
					source, err := sources.GetByName(ctx, opts.sourceName)
					if err != nil {
						return fmt.Errorf("source %q: %w", opts.sourceName, err)
					}
					req.SourceID = &source.ID
				}

				existing, proceed, err := prepareRun(ctx, snapshots, req.RunID, opts.overwrite)
				if err != nil {
					return err
				}
				if !proceed {
					fmt.Fprintf(cmd.OutOrStdout(), "run %s already imported as snapshot %s (%s), use --overwrite to replace\n",
						existing.RunID, existing.ID, existing.Status)
					return nil
				}

				result, err := importer.ImportFile(ctx, args[0], req)
				if err != nil {
					return err
				}
				printImportResult(cmd.OutOrStdout(), result)
				return nil
			},
				domainModules(),
				ingestModules(),
				metricspush.Module,
				fx.Populate(&importer, &sources, &snapshots),
			)
		},
	}
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "snapshot run id (default from --manifest, else manual-<ulid>)")
	cmd.Flags().StringVar(&opts.reportDate, "report-date", "", "report date of the export, YYYY-MM-DD (default from --manifest)")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "manifest.json of the export run")
	cmd.Flags().StringVar(&opts.sourceName, "source", "", "blob source name to attribute the snapshot to")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "replace an existing snapshot with the same run id")
	return cmd
}

// request builds the import request for file. A manifest supplies the run id
// and report date unless --run-id or --report-date set them.
func (o importOptions) request(file string) (ingestdomain.ImportRequest, error) {
	req := ingestdomain.ImportRequest{
		RunID:    strings.TrimSpace(o.runID),
		FileName: filepath.Base(file),
	}

	if o.manifest != "" {
		f, err := os.Open(o.manifest)
		if err != nil {
			return req, fmt.Errorf("manifest: %w", err)
		}
		defer f.Close()

		manifest, err := blob.ParseManifest(f)
		if err != nil {
			return req, fmt.Errorf("manifest %s: %w", o.manifest, err)
		}
		reportDate, err := manifest.ReportDate()
		if err != nil {
			return req, fmt.Errorf("manifest %s: %w", o.manifest, err)
		}
		if req.RunID == "" {
			req.RunID = manifest.RunInfo.RunID
		}
		req.ReportDate = reportDate
	}

	if o.reportDate != "" {
		parsed, err := time.Parse(time.DateOnly, o.reportDate)
		if err != nil {
			return req, fmt.Errorf("invalid --report-date %q: %w", o.reportDate, err)
		}
		req.ReportDate = &parsed
	}
	return req, nil
}

// prepareRun decides whether a manual import of runID goes ahead. An existing
// snapshot that has not failed blocks the run unless overwrite is set;
// otherwise it is deleted first. A blank run id is generated by the importer
// and never collides.
func prepareRun(ctx context.Context, snapshots snapshotdomain.Service, runID string, overwrite bool) (*snapshotdomain.Snapshot, bool, error) {
	if runID == "" {
		return nil, true, nil
	}
	existing, err := snapshots.FindByRunID(ctx, runID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, true, nil
	}
	if existing.Status != snapshotdomain.StatusFailed && !overwrite {
		return existing, false, nil
	}
	if err := snapshots.Delete(ctx, existing.ID); err != nil {
		return existing, false, fmt.Errorf("replace snapshot %s: %w", existing.ID, err)
	}
	return existing, true, nil
}

func printImportResult(w io.Writer, result *ingestdomain.Result) {
	fmt.Fprintf(w, "snapshot %s (%s): imported %d rows, skipped %d\n",
		result.Snapshot.RunID, result.Snapshot.Status, result.Imported, result.Skipped)
	if len(result.Reasons) == 0 {
		return
	}
	reasons := make([]string, 0, len(result.Reasons))
	for reason := range result.Reasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %6d  %s\n", result.Reasons[reason], reason)
	}
}

func newFetchCmd() *cobra.Command {
	var (
		names []string
		opts  blob.FetchOptions
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and import new export runs from blob sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				fetcher *blob.Fetcher
				sources sourcedomain.Service
				cfg     config.Config
			)
			return runTask(cmd.Context(), func(ctx context.Context) error {
				for _, name := range names {
					if _, err := sources.GetByName(ctx, name); err != nil {
						return fmt.Errorf("source %q: %w", name, err)
					}
				}
				reports, err := fetcher.FetchAll(ctx, names, opts, cfg.Fetch.SourceTimeout)
				printFetchReports(cmd.OutOrStdout(), reports)
				return err
			},
				domainModules(),
				ingestModules(),
				metricspush.Module,
				fx.Populate(&fetcher, &sources, &cfg),
			)
		},
	}
	cmd.Flags().StringSliceVar(&names, "source", nil, "only fetch these sources (default all active)")
	cmd.Flags().StringVar(&opts.BillingPeriod, "period", "", "billing period folder YYYYMMDD-YYYYMMDD (default current month)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "re-import runs that already have a snapshot")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list what would be imported without importing")
	return cmd
}

func printFetchReports(w io.Writer, reports []blob.FetchReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Source", "Period", "Run", "Report date", "Size", "Status", "Imported", "Skipped"})
	for _, report := range reports {
		if len(report.Runs) == 0 {
			tw.AppendRow(table.Row{report.Source, report.Period, "", "", "", report.Status, "", ""})
			continue
		}
		for _, run := range report.Runs {
			status := run.Status
			if run.Reason != "" {
				status += ": " + run.Reason
			}
			tw.AppendRow(table.Row{
				report.Source, report.Period, run.RunID, formatDate(run.ReportDate),
				blob.FormatBytes(run.Size), status, run.Imported, run.Skipped,
			})
		}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.Render()
}

func newInspectCmd() *cobra.Command {
	var sourceName, period string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the export runs available for a blob source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				fetcher *blob.Fetcher
				sources sourcedomain.Service
			)
			return runTask(cmd.Context(), func(ctx context.Context) error {
				source, err := sources.GetByName(ctx, sourceName)
				if err != nil {
					return fmt.Errorf("source %q: %w", sourceName, err)
				}
				report, err := fetcher.Inspect(ctx, source, period)
				if err != nil {
					return err
				}
				printInspectReport(cmd.OutOrStdout(), report)
				return nil
			},
				domainModules(),
				ingestModules(),
				fx.Populate(&fetcher, &sources),
			)
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", "", "blob source name")
	cmd.Flags().StringVar(&period, "period", "", "billing period folder YYYYMMDD-YYYYMMDD (default current month)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func printInspectReport(w io.Writer, report *blob.InspectReport) {
	fmt.Fprintf(w, "source %s at %s\n", report.Source, report.Prefix)
	fmt.Fprintf(w, "%d blobs (%d manifests, %d csv, %d other), %s\n",
		report.TotalBlobs, report.Manifests, report.CSVFiles, report.OtherFiles, blob.FormatBytes(report.TotalBytes))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Run", "Report date", "CSV", "Size", "Modified", "Imported"})
	for _, run := range report.Runs {
		imported := "no"
		if run.Imported {
			imported = text.FgGreen.Sprint("yes")
		}
		tw.AppendRow(table.Row{
			run.RunID, formatDate(run.ReportDate), run.CSVBlob, blob.FormatBytes(run.Size),
			run.LastModified.Format(time.RFC3339), imported,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	tw.Render()
}

func newDownloadCmd() *cobra.Command {
	var (
		sourceName string
		dir        string
		listOnly   bool
		opts       blob.DownloadOptions
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download export runs of a blob source without importing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				fetcher *blob.Fetcher
				sources sourcedomain.Service
			)
			return runTask(cmd.Context(), func(ctx context.Context) error {
				source, err := sources.GetByName(ctx, sourceName)
				if err != nil {
					return fmt.Errorf("source %q: %w", sourceName, err)
				}
				if listOnly {
					objects, err := fetcher.ListBlobs(ctx, source, opts.BillingPeriod)
					if err != nil {
						return err
					}
					printBlobList(cmd.OutOrStdout(), objects)
					return nil
				}
				runs, err := fetcher.Download(ctx, source, dir, opts)
				printDownloadedRuns(cmd.OutOrStdout(), runs)
				return err
			},
				domainModules(),
				ingestModules(),
				fx.Populate(&fetcher, &sources),
			)
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", "", "blob source name")
	cmd.Flags().StringVar(&opts.BillingPeriod, "period", "", "billing period folder YYYYMMDD-YYYYMMDD (default current month)")
	cmd.Flags().StringVar(&dir, "dir", "downloads", "output directory")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace files from an earlier download")
	cmd.Flags().BoolVar(&opts.SkipCSV, "skip-csv", false, "download manifests and metadata only")
	cmd.Flags().BoolVar(&listOnly, "list-only", false, "list the blobs of the period without downloading")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func printDownloadedRuns(w io.Writer, runs []blob.DownloadedRun) {
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  %s\n", run.RunID, blob.FormatBytes(run.Size), run.Dir)
		for _, name := range run.Kept {
			fmt.Fprintf(w, "  exists, skipped: %s\n", filepath.Base(name))
		}
	}
}

func printBlobList(w io.Writer, objects []blob.Object) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Blob", "Size", "Modified"})
	for _, obj := range objects {
		tw.AppendRow(table.Row{obj.Name, blob.FormatBytes(obj.Size), obj.LastModified.Format(time.RFC3339)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	tw.Render()
}

func newBackfillResourceNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-resource-names",
		Short: "Derive missing resource names from resource ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resources resourcedomain.Service
			return runTask(cmd.Context(), func(ctx context.Context) error {
				updated, err := resources.BackfillNames(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d resources\n", updated)
				return nil
			},
				domainModules(),
				fx.Populate(&resources),
			)
		},
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
