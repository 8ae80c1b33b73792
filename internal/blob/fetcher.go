package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gosimple/slug"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	obscontext "github.com/vilosource/cielo-azure-billing/internal/observability/context"
	"github.com/vilosource/cielo-azure-billing/internal/observability/metrics"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	RunImported = "imported"
	RunSkipped  = "skipped"
	RunDryRun   = "dry_run"
	RunFailed   = "failed"
)

type FetchOptions struct {
	// BillingPeriod is the YYYYMMDD-YYYYMMDD folder; empty means the current month.
	BillingPeriod string
	Overwrite     bool
	DryRun        bool
}

type RunOutcome struct {
	RunID      string     `json:"run_id"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	Blob       string     `json:"blob"`
	Size       int64      `json:"size"`
	Status     string     `json:"status"`
	Imported   int        `json:"imported"`
	Skipped    int        `json:"skipped"`
	Reason     string     `json:"reason,omitempty"`
}

type FetchReport struct {
	Source    string       `json:"source"`
	Period    string       `json:"period"`
	Manifests int          `json:"manifests"`
	Status    string       `json:"status"`
	Runs      []RunOutcome `json:"runs"`
}

type InspectRun struct {
	RunID        string     `json:"run_id"`
	ReportDate   *time.Time `json:"report_date,omitempty"`
	Manifest     string     `json:"manifest"`
	CSVBlob      string     `json:"csv_blob"`
	Size         int64      `json:"size"`
	LastModified time.Time  `json:"last_modified"`
	Imported     bool       `json:"imported"`
}

type InspectReport struct {
	Source     string       `json:"source"`
	Prefix     string       `json:"prefix"`
	TotalBlobs int          `json:"total_blobs"`
	Manifests  int          `json:"manifests"`
	CSVFiles   int          `json:"csv_files"`
	OtherFiles int          `json:"other_files"`
	TotalBytes int64        `json:"total_bytes"`
	Runs       []InspectRun `json:"runs"`
}

type DownloadedRun struct {
	RunID      string     `json:"run_id"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	Source     string     `json:"source"`
	CSVBlob    string     `json:"csv_blob"`
	Size       int64      `json:"size"`
	Dir        string     `json:"-"`
	Downloaded time.Time  `json:"downloaded_at"`
	// Kept lists files left in place from an earlier download.
	Kept       []string   `json:"-"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Stores    StoreProvider
	Sources   sourcedomain.Service
	Snapshots snapshotdomain.Service
	Importer  ingestdomain.Importer
	Metrics   *metrics.Metrics    `optional:"true"`
	Jobs      *metrics.JobMetrics `optional:"true"`
}

// Fetcher pulls export runs of blob sources into snapshots.
type Fetcher struct {
	log       *zap.Logger
	clock     clock.Clock
	stores    StoreProvider
	sources   sourcedomain.Service
	snapshots snapshotdomain.Service
	importer  ingestdomain.Importer
	metrics   *metrics.Metrics
	jobs      *metrics.JobMetrics
}

func NewFetcher(p Params) *Fetcher {
	return &Fetcher{
		log:       p.Log.Named("blob.fetcher"),
		clock:     p.Clock,
		stores:    p.Stores,
		sources:   p.Sources,
		snapshots: p.Snapshots,
		importer:  p.Importer,
		metrics:   p.Metrics,
		jobs:      p.Jobs,
	}
}

// FetchAll fetches every active source, or only the named ones. A failing
// source does not stop the others; their errors are joined.
func (f *Fetcher) FetchAll(ctx context.Context, names []string, opts FetchOptions, timeout time.Duration) ([]FetchReport, error) {
	sources, err := f.sources.List(ctx, true)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}

	var (
		reports []FetchReport
		errs    []error
	)
	for i := range sources {
		source := &sources[i]
		if len(wanted) > 0 && !wanted[source.Name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		sourceCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			sourceCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		report, err := f.Fetch(sourceCtx, source, opts)
		cancel()
		if report != nil {
			reports = append(reports, *report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", source.Name, err))
		}
	}
	return reports, errors.Join(errs...)
}

func (f *Fetcher) Fetch(ctx context.Context, source *sourcedomain.BlobSource, opts FetchOptions) (*FetchReport, error) {
	ctx = obscontext.WithSource(ctx, source.Name)
	period := opts.BillingPeriod
	if period == "" {
		period = DefaultBillingPeriod(f.clock.Now())
	}
	report := &FetchReport{Source: source.Name, Period: period}

	if !opts.DryRun {
		if err := f.sources.RecordAttempt(ctx, source); err != nil {
			return nil, err
		}
	}

	runs, err := f.fetch(ctx, source, period, opts, report)
	report.Runs = runs

	switch {
	case err != nil:
		report.Status = sourcedomain.ErrorStatus(err)
		f.log.Error("fetch source failed", zap.String("source", source.Name), zap.String("period", period), zap.Error(err))
	case report.Manifests == 0:
		report.Status = sourcedomain.StatusNoManifests
	case opts.DryRun:
		report.Status = sourcedomain.StatusDryRun
	case countRuns(runs, RunImported) > 0:
		report.Status = sourcedomain.StatusImported
	default:
		report.Status = sourcedomain.StatusSkipped
	}
	f.jobs.IncSourceFetched(outcomeLabel(report.Status, err))

	if opts.DryRun {
		return report, err
	}

	var importedAt *time.Time
	if err == nil && countRuns(runs, RunImported) > 0 {
		now := f.clock.Now()
		importedAt = &now
	}
	if recErr := f.sources.RecordResult(context.WithoutCancel(ctx), source, report.Status, importedAt); recErr != nil {
		err = errors.Join(err, recErr)
	}
	return report, err
}

func (f *Fetcher) fetch(ctx context.Context, source *sourcedomain.BlobSource, period string, opts FetchOptions, report *FetchReport) ([]RunOutcome, error) {
	store, prefix, err := f.open(source)
	if err != nil {
		return nil, err
	}
	objects, err := f.list(ctx, store, prefix, period)
	if err != nil {
		return nil, err
	}

	sizes := make(map[string]int64, len(objects))
	var manifests []Object
	for _, obj := range objects {
		sizes[obj.Name] = obj.Size
		if isManifest(obj.Name) {
			manifests = append(manifests, obj)
		}
	}
	report.Manifests = len(manifests)
	if len(manifests) == 0 {
		f.log.Info("no manifests found", zap.String("source", source.Name), zap.String("prefix", prefix), zap.String("period", period))
		return nil, nil
	}

	var runs []RunOutcome
	for _, obj := range manifests {
		outcome, err := f.fetchRun(ctx, store, source, obj, sizes, opts)
		if outcome != nil {
			runs = append(runs, *outcome)
			f.metrics.RecordFetchRun(ctx, source.Name, outcome.Status)
		}
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

func (f *Fetcher) fetchRun(ctx context.Context, store Store, source *sourcedomain.BlobSource, obj Object, sizes map[string]int64, opts FetchOptions) (*RunOutcome, error) {
	manifest, err := readManifest(ctx, store, obj.Name)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", obj.Name, err)
	}
	reportDate, err := manifest.ReportDate()
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", obj.Name, err)
	}
	csvBlob, err := manifest.CSVBlob()
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", obj.Name, err)
	}

	runID := manifest.RunInfo.RunID
	outcome := &RunOutcome{RunID: runID, ReportDate: reportDate, Blob: csvBlob, Size: sizes[csvBlob]}
	if outcome.Size == 0 {
		outcome.Size = manifest.Blobs[0].ByteCount
	}
	log := f.log.With(zap.String("source", source.Name), zap.String("run_id", runID))

	existing, err := f.snapshots.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != snapshotdomain.StatusFailed && !opts.Overwrite {
		outcome.Status = RunSkipped
		outcome.Reason = "already imported"
		log.Info("run already imported")
		return outcome, nil
	}
	if opts.DryRun {
		outcome.Status = RunDryRun
		return outcome, nil
	}
	if existing != nil {
		log.Info("replacing existing snapshot", zap.String("snapshot_id", existing.ID.String()), zap.String("status", string(existing.Status)))
		if err := f.snapshots.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	body, err := openBlob(ctx, store, csvBlob)
	if err != nil {
		outcome.Status = RunFailed
		return outcome, fmt.Errorf("open %s: %w", csvBlob, err)
	}
	defer body.Close()

	sourceID := source.ID
	result, err := f.importer.Import(ctx, body, ingestdomain.ImportRequest{
		RunID:      runID,
		ReportDate: reportDate,
		FileName:   csvBlob,
		SourceID:   &sourceID,
	})
	if err != nil {
		outcome.Status = RunFailed
		return outcome, err
	}

	outcome.Status = RunImported
	outcome.Imported = result.Imported
	outcome.Skipped = result.Skipped
	log.Info("run imported", zap.Int("imported", result.Imported), zap.Int("skipped", result.Skipped))
	return outcome, nil
}

func (f *Fetcher) Inspect(ctx context.Context, source *sourcedomain.BlobSource, period string) (*InspectReport, error) {
	store, prefix, err := f.open(source)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultBillingPeriod(f.clock.Now())
	}
	objects, err := f.list(ctx, store, prefix, period)
	if err != nil {
		return nil, err
	}

	report := &InspectReport{Source: source.Name, Prefix: prefix + period + "/", TotalBlobs: len(objects)}
	sizes := make(map[string]int64, len(objects))
	for _, obj := range objects {
		sizes[obj.Name] = obj.Size
		report.TotalBytes += obj.Size
		switch {
		case isManifest(obj.Name):
			report.Manifests++
		case isCSV(obj.Name):
			report.CSVFiles++
		default:
			report.OtherFiles++
		}
	}

	for _, obj := range objects {
		if !isManifest(obj.Name) {
			continue
		}
		manifest, err := readManifest(ctx, store, obj.Name)
		if err != nil {
			f.log.Warn("unreadable manifest", zap.String("source", source.Name), zap.String("manifest", obj.Name), zap.Error(err))
			continue
		}
		run := InspectRun{RunID: manifest.RunInfo.RunID, Manifest: obj.Name, LastModified: obj.LastModified}
		run.ReportDate, _ = manifest.ReportDate()
		if name, err := manifest.CSVBlob(); err == nil {
			run.CSVBlob = name
			run.Size = sizes[name]
		}
		existing, err := f.snapshots.FindByRunID(ctx, run.RunID)
		if err != nil {
			return nil, err
		}
		run.Imported = existing != nil && existing.Status == snapshotdomain.StatusComplete
		report.Runs = append(report.Runs, run)
	}
	sort.Slice(report.Runs, func(i, j int) bool {
		return report.Runs[i].LastModified.Before(report.Runs[j].LastModified)
	})
	return report, nil
}

// DownloadOptions controls a local copy of export runs.
type DownloadOptions struct {
	BillingPeriod string
	// Overwrite replaces files left by an earlier download.
	Overwrite bool
	// SkipCSV writes only the manifest and run metadata.
	SkipCSV bool
}

// ListBlobs returns every blob in the period folder of source.
func (f *Fetcher) ListBlobs(ctx context.Context, source *sourcedomain.BlobSource, period string) ([]Object, error) {
	store, prefix, err := f.open(source)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultBillingPeriod(f.clock.Now())
	}
	objects, err := f.list(ctx, store, prefix, period)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Download copies every run of the billing period into dir without
// importing it. Existing files are kept unless opts.Overwrite is set.
func (f *Fetcher) Download(ctx context.Context, source *sourcedomain.BlobSource, dir string, opts DownloadOptions) ([]DownloadedRun, error) {
	store, prefix, err := f.open(source)
	if err != nil {
		return nil, err
	}
	period := opts.BillingPeriod
	if period == "" {
		period = DefaultBillingPeriod(f.clock.Now())
	}
	objects, err := f.list(ctx, store, prefix, period)
	if err != nil {
		return nil, err
	}

	var runs []DownloadedRun
	for _, obj := range objects {
		if !isManifest(obj.Name) {
			continue
		}
		run, err := f.downloadRun(ctx, store, source, obj, dir, opts)
		if err != nil {
			return runs, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (f *Fetcher) downloadRun(ctx context.Context, store Store, source *sourcedomain.BlobSource, obj Object, dir string, opts DownloadOptions) (*DownloadedRun, error) {
	raw, err := readAll(ctx, store, obj.Name)
	if err != nil {
		return nil, err
	}
	manifest, err := ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", obj.Name, err)
	}
	csvBlob, err := manifest.CSVBlob()
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", obj.Name, err)
	}

	runDir := filepath.Join(dir, slug.Make(manifest.RunInfo.RunID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	log := f.log.With(zap.String("run_id", manifest.RunInfo.RunID), zap.String("dir", runDir))

	run := &DownloadedRun{
		RunID:      manifest.RunInfo.RunID,
		Source:     source.Name,
		CSVBlob:    csvBlob,
		Size:       manifest.Blobs[0].ByteCount,
		Dir:        runDir,
		Downloaded: f.clock.Now(),
	}
	run.ReportDate, _ = manifest.ReportDate()

	manifestPath := filepath.Join(runDir, "manifest.json")
	if keep(manifestPath, opts.Overwrite) {
		run.Kept = append(run.Kept, manifestPath)
	} else if err := os.WriteFile(manifestPath, raw, 0o644); err != nil {
		return nil, err
	}

	if !opts.SkipCSV {
		csvPath := filepath.Join(runDir, path.Base(csvBlob))
		if keep(csvPath, opts.Overwrite) {
			run.Kept = append(run.Kept, csvPath)
			if info, err := os.Stat(csvPath); err == nil {
				run.Size = info.Size()
			}
		} else {
			size, err := copyBlob(ctx, store, csvBlob, csvPath)
			if err != nil {
				return nil, err
			}
			run.Size = size
		}
	}

	metaPath := filepath.Join(runDir, "run_metadata.json")
	if keep(metaPath, opts.Overwrite) {
		run.Kept = append(run.Kept, metaPath)
	} else {
		meta, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
			return nil, err
		}
	}

	if len(run.Kept) > 0 {
		log.Info("kept existing files", zap.Strings("files", run.Kept))
	}
	log.Info("run downloaded", zap.String("size", FormatBytes(run.Size)), zap.Bool("skip_csv", opts.SkipCSV))
	return run, nil
}

// keep reports whether an existing file at name stays untouched.
func keep(name string, overwrite bool) bool {
	if overwrite {
		return false
	}
	_, err := os.Stat(name)
	return err == nil
}

func (f *Fetcher) open(source *sourcedomain.BlobSource) (Store, string, error) {
	containerURL, prefix, err := ParseBaseFolder(source.BaseFolder)
	if err != nil {
		return nil, "", err
	}
	store, err := f.stores.Store(containerURL)
	if err != nil {
		return nil, "", err
	}
	return store, prefix, nil
}

// list returns the period folder, or the whole base folder when the period
// folder is empty.
func (f *Fetcher) list(ctx context.Context, store Store, prefix, period string) ([]Object, error) {
	objects, err := store.List(ctx, prefix+period+"/")
	if err != nil {
		return nil, err
	}
	if len(objects) > 0 {
		return objects, nil
	}
	f.log.Debug("period folder empty, listing base folder", zap.String("prefix", prefix), zap.String("period", period))
	return store.List(ctx, prefix)
}

func readManifest(ctx context.Context, store Store, name string) (*Manifest, error) {
	body, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseManifest(body)
}

func readAll(ctx context.Context, store Store, name string) ([]byte, error) {
	body, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func copyBlob(ctx context.Context, store Store, name, dst string) (int64, error) {
	body, err := store.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// openBlob streams a data blob, gunzipping *.gz names.
func openBlob(ctx context.Context, store Store, name string) (io.ReadCloser, error) {
	body, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, ".gz") {
		return body, nil
	}
	zr, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, err
	}
	return &gzipBody{Reader: zr, body: body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipBody) Close() error {
	return errors.Join(g.Reader.Close(), g.body.Close())
}

func countRuns(runs []RunOutcome, status string) int {
	n := 0
	for _, run := range runs {
		if run.Status == status {
			n++
		}
	}
	return n
}

func outcomeLabel(status string, err error) string {
	if err != nil {
		return "error"
	}
	return strings.ReplaceAll(status, " ", "_")
}
