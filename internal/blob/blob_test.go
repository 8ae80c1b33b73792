package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"go.uber.org/zap"
)

type memoryStore struct {
	objects map[string][]byte
	listed  []string
}

func (s *memoryStore) put(name string, data []byte) {
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[name] = data
}

func (s *memoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	s.listed = append(s.listed, prefix)
	var out []Object
	for name, data := range s.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, Object{Name: name, Size: int64(len(data)), LastModified: time.Unix(int64(len(name)), 0)})
		}
	}
	return out, nil
}

func (s *memoryStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := s.objects[name]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type storeProvider struct {
	store *memoryStore
	urls  []string
}

func (p *storeProvider) Store(containerURL string) (Store, error) {
	p.urls = append(p.urls, containerURL)
	return p.store, nil
}

type sourcesStub struct {
	sourcedomain.Service
	list     []sourcedomain.BlobSource
	attempts int
	statuses []string
	imported []*time.Time
}

func (s *sourcesStub) List(context.Context, bool) ([]sourcedomain.BlobSource, error) {
	return s.list, nil
}

func (s *sourcesStub) RecordAttempt(context.Context, *sourcedomain.BlobSource) error {
	s.attempts++
	return nil
}

func (s *sourcesStub) RecordResult(_ context.Context, _ *sourcedomain.BlobSource, status string, importedAt *time.Time) error {
	s.statuses = append(s.statuses, status)
	s.imported = append(s.imported, importedAt)
	return nil
}

type snapshotsStub struct {
	snapshotdomain.Service
	byRun   map[string]*snapshotdomain.Snapshot
	deleted []snowflake.ID
}

func (s *snapshotsStub) FindByRunID(_ context.Context, runID string) (*snapshotdomain.Snapshot, error) {
	return s.byRun[runID], nil
}

func (s *snapshotsStub) Delete(_ context.Context, id snowflake.ID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type importerStub struct {
	ingestdomain.Importer
	requests []ingestdomain.ImportRequest
	bodies   []string
	err      error
}

func (i *importerStub) Import(_ context.Context, r io.Reader, req ingestdomain.ImportRequest) (*ingestdomain.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	i.requests = append(i.requests, req)
	i.bodies = append(i.bodies, string(data))
	if i.err != nil {
		return nil, i.err
	}
	return &ingestdomain.Result{Imported: strings.Count(string(data), "\n"), Skipped: 0}, nil
}

type fixture struct {
	fetcher   *Fetcher
	store     *memoryStore
	stores    *storeProvider
	sources   *sourcesStub
	snapshots *snapshotsStub
	importer  *importerStub
	source    *sourcedomain.BlobSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memoryStore{}
	f := &fixture{
		store:     store,
		stores:    &storeProvider{store: store},
		sources:   &sourcesStub{},
		snapshots: &snapshotsStub{byRun: map[string]*snapshotdomain.Snapshot{}},
		importer:  &importerStub{},
		source:    &sourcedomain.BlobSource{ID: 42, Name: "prod", BaseFolder: "https://acct.blob.core.windows.net/exports/billing/daily/"},
	}
	f.sources.list = []sourcedomain.BlobSource{*f.source}
	f.fetcher = NewFetcher(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)),
		Stores:    f.stores,
		Sources:   f.sources,
		Snapshots: f.snapshots,
		Importer:  f.importer,
	})
	return f
}

func manifestJSON(runID, endDate, blobName string) []byte {
	return []byte(`{"runInfo":{"runId":"` + runID + `","endDate":"` + endDate + `","reportName":"daily"},` +
		`"blobs":[{"blobName":"` + blobName + `","byteCount":10}]}`)
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseBaseFolder(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		container string
		prefix    string
		wantErr   bool
	}{
		{name: "nested", raw: "https://acct.blob.core.windows.net/exports/billing/daily/", container: "https://acct.blob.core.windows.net/exports", prefix: "billing/daily/"},
		{name: "no trailing slash", raw: "https://acct.blob.core.windows.net/exports/billing", container: "https://acct.blob.core.windows.net/exports", prefix: "billing/"},
		{name: "container root", raw: "https://acct.blob.core.windows.net/exports", container: "https://acct.blob.core.windows.net/exports", prefix: ""},
		{name: "no container", raw: "https://acct.blob.core.windows.net/", wantErr: true},
		{name: "not a url", raw: "exports/billing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, prefix, err := ParseBaseFolder(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBaseFolder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.container, container)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestManifest(t *testing.T) {
	m, err := ParseManifest(bytes.NewReader(manifestJSON("run-1", "2024-03-14T23:59:59", "billing/daily/run-1/part_0.csv")))
	require.NoError(t, err)

	date, err := m.ReportDate()
	require.NoError(t, err)
	require.NotNil(t, date)
	assert.Equal(t, "2024-03-14", date.Format(time.DateOnly))

	name, err := m.CSVBlob()
	require.NoError(t, err)
	assert.Equal(t, "billing/daily/run-1/part_0.csv", name)

	_, err = ParseManifest(strings.NewReader(`{"runInfo":{}}`))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	empty := &Manifest{RunInfo: RunInfo{RunID: "x"}}
	_, err = empty.CSVBlob()
	assert.ErrorIs(t, err, ErrNoBlobName)
	date, err = empty.ReportDate()
	require.NoError(t, err)
	assert.Nil(t, date)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512.0 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 TB", FormatBytes(1<<40))
	assert.Equal(t, "2.0 PB", FormatBytes(2<<50))
}

func TestDefaultBillingPeriod(t *testing.T) {
	assert.Equal(t, "20240301-20240315", DefaultBillingPeriod(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)))
}

func TestFetchImportsPeriodRuns(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/20240301-20240331/run-1/manifest.json", manifestJSON("run-1", "2024-03-14T00:00:00", "billing/daily/20240301-20240331/run-1/part_0.csv.gz"))
	f.store.put("billing/daily/20240301-20240331/run-1/part_0.csv.gz", gzipped(t, "header\nrow\n"))

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{BillingPeriod: "20240301-20240331"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://acct.blob.core.windows.net/exports"}, f.stores.urls)
	assert.Equal(t, sourcedomain.StatusImported, report.Status)
	assert.Equal(t, 1, report.Manifests)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, RunImported, report.Runs[0].Status)
	assert.Equal(t, 2, report.Runs[0].Imported)

	require.Len(t, f.importer.requests, 1)
	req := f.importer.requests[0]
	assert.Equal(t, "run-1", req.RunID)
	require.NotNil(t, req.SourceID)
	assert.Equal(t, snowflake.ID(42), *req.SourceID)
	assert.Equal(t, "2024-03-14", req.ReportDate.Format(time.DateOnly))
	assert.Equal(t, "header\nrow\n", f.importer.bodies[0])

	assert.Equal(t, 1, f.sources.attempts)
	assert.Equal(t, []string{sourcedomain.StatusImported}, f.sources.statuses)
	assert.NotNil(t, f.sources.imported[0])
}

func TestFetchFallsBackToBaseFolder(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/other/manifest.json", manifestJSON("run-2", "2024-03-10", "billing/daily/other/part_0.csv"))
	f.store.put("billing/daily/other/part_0.csv", []byte("header\n"))

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"billing/daily/20240301-20240315/", "billing/daily/"}, f.store.listed)
	assert.Equal(t, "20240301-20240315", report.Period)
	assert.Equal(t, sourcedomain.StatusImported, report.Status)
}

func TestFetchNoManifests(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/readme.txt", []byte("hello"))

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, sourcedomain.StatusNoManifests, report.Status)
	assert.Equal(t, []string{sourcedomain.StatusNoManifests}, f.sources.statuses)
	assert.Nil(t, f.sources.imported[0])
}

func TestFetchSkipsImportedAndReplacesFailed(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("h\n"))
	f.store.put("billing/daily/b/manifest.json", manifestJSON("run-b", "2024-03-11", "billing/daily/b/part_0.csv"))
	f.store.put("billing/daily/b/part_0.csv", []byte("h\n"))
	f.snapshots.byRun["run-a"] = &snapshotdomain.Snapshot{ID: 1, RunID: "run-a", Status: snapshotdomain.StatusComplete}
	f.snapshots.byRun["run-b"] = &snapshotdomain.Snapshot{ID: 2, RunID: "run-b", Status: snapshotdomain.StatusFailed}

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{})
	require.NoError(t, err)

	statuses := map[string]string{}
	for _, run := range report.Runs {
		statuses[run.RunID] = run.Status
	}
	assert.Equal(t, map[string]string{"run-a": RunSkipped, "run-b": RunImported}, statuses)
	assert.Equal(t, []snowflake.ID{2}, f.snapshots.deleted)
	require.Len(t, f.importer.requests, 1)
	assert.Equal(t, "run-b", f.importer.requests[0].RunID)
}

func TestFetchOverwriteReplacesComplete(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("h\n"))
	f.snapshots.byRun["run-a"] = &snapshotdomain.Snapshot{ID: 7, RunID: "run-a", Status: snapshotdomain.StatusComplete}

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, sourcedomain.StatusImported, report.Status)
	assert.Equal(t, []snowflake.ID{7}, f.snapshots.deleted)
}

func TestFetchAllSkippedStatus(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.snapshots.byRun["run-a"] = &snapshotdomain.Snapshot{ID: 1, RunID: "run-a", Status: snapshotdomain.StatusInProgress}

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, sourcedomain.StatusSkipped, report.Status)
	assert.Nil(t, f.sources.imported[0])
}

func TestFetchDryRunDoesNotImport(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("h\n"))

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, sourcedomain.StatusDryRun, report.Status)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, RunDryRun, report.Runs[0].Status)
	assert.Equal(t, int64(2), report.Runs[0].Size)
	assert.Empty(t, f.importer.requests)
	assert.Zero(t, f.sources.attempts)
	assert.Empty(t, f.sources.statuses)
}

func TestFetchImportErrorRecordsStatus(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("h\n"))
	f.importer.err = errors.New("db down")

	report, err := f.fetcher.Fetch(context.Background(), f.source, FetchOptions{})
	require.Error(t, err)
	assert.Equal(t, "error: db down", report.Status)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, RunFailed, report.Runs[0].Status)
	assert.Equal(t, []string{"error: db down"}, f.sources.statuses)
}

func TestFetchAllFiltersByName(t *testing.T) {
	f := newFixture(t)
	other := sourcedomain.BlobSource{ID: 43, Name: "dev", BaseFolder: "not a url"}
	f.sources.list = append(f.sources.list, other)

	reports, err := f.fetcher.FetchAll(context.Background(), []string{"prod"}, FetchOptions{}, time.Minute)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "prod", reports[0].Source)

	reports, err = f.fetcher.FetchAll(context.Background(), nil, FetchOptions{}, 0)
	require.ErrorIs(t, err, ErrInvalidBaseFolder)
	assert.Len(t, reports, 2)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/20240301-20240315/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/20240301-20240315/a/part_0.csv"))
	f.store.put("billing/daily/20240301-20240315/a/part_0.csv", []byte("0123456789"))
	f.store.put("billing/daily/20240301-20240315/a/notes.txt", []byte("x"))
	f.snapshots.byRun["run-a"] = &snapshotdomain.Snapshot{ID: 1, RunID: "run-a", Status: snapshotdomain.StatusComplete}

	report, err := f.fetcher.Inspect(context.Background(), f.source, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalBlobs)
	assert.Equal(t, 1, report.Manifests)
	assert.Equal(t, 1, report.CSVFiles)
	assert.Equal(t, 1, report.OtherFiles)
	require.Len(t, report.Runs, 1)
	assert.True(t, report.Runs[0].Imported)
	assert.Equal(t, int64(10), report.Runs[0].Size)
	assert.Zero(t, f.sources.attempts)
}

func TestDownloadWritesRunFolder(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("Run/A 1", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("header\nrow\n"))
	dir := t.TempDir()

	runs, err := f.fetcher.Download(context.Background(), f.source, dir, DownloadOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runDir := filepath.Join(dir, "run-a-1")
	assert.Equal(t, runDir, runs[0].Dir)
	csv, err := os.ReadFile(filepath.Join(runDir, "part_0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "header\nrow\n", string(csv))
	assert.FileExists(t, filepath.Join(runDir, "manifest.json"))

	meta, err := os.ReadFile(filepath.Join(runDir, "run_metadata.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"run_id": "Run/A 1"`)
	assert.Contains(t, string(meta), `"source": "prod"`)
	assert.Empty(t, f.importer.requests)
}

func TestDownloadKeepsExistingFiles(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("header\nrow\n"))
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run-a")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "part_0.csv"), []byte("local"), 0o644))

	runs, err := f.fetcher.Download(context.Background(), f.source, dir, DownloadOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{filepath.Join(runDir, "part_0.csv")}, runs[0].Kept)
	assert.Equal(t, int64(5), runs[0].Size)

	csv, err := os.ReadFile(filepath.Join(runDir, "part_0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(csv))
	assert.FileExists(t, filepath.Join(runDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(runDir, "run_metadata.json"))

	runs, err = f.fetcher.Download(context.Background(), f.source, dir, DownloadOptions{Overwrite: true})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Kept)
	csv, err = os.ReadFile(filepath.Join(runDir, "part_0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "header\nrow\n", string(csv))
}

func TestDownloadSkipCSV(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/a/manifest.json", manifestJSON("run-a", "2024-03-10", "billing/daily/a/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("header\nrow\n"))
	dir := t.TempDir()

	runs, err := f.fetcher.Download(context.Background(), f.source, dir, DownloadOptions{SkipCSV: true})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runDir := filepath.Join(dir, "run-a")
	assert.FileExists(t, filepath.Join(runDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(runDir, "run_metadata.json"))
	assert.NoFileExists(t, filepath.Join(runDir, "part_0.csv"))
}

func TestListBlobs(t *testing.T) {
	f := newFixture(t)
	f.store.put("billing/daily/b/manifest.json", manifestJSON("run-b", "2024-03-11", "billing/daily/b/part_0.csv"))
	f.store.put("billing/daily/a/part_0.csv", []byte("header\n"))

	objects, err := f.fetcher.ListBlobs(context.Background(), f.source, "")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "billing/daily/a/part_0.csv", objects[0].Name)
	assert.Equal(t, "billing/daily/b/manifest.json", objects[1].Name)
	assert.Equal(t, int64(7), objects[0].Size)
}
