package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vilosource/cielo-azure-billing/internal/blob"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "scheduler", "migrate", "import", "fetch", "inspect", "download", "backfill-resource-names"} {
		assert.True(t, names[want], want)
	}
}

func TestImportRequiresFile(t *testing.T) {
	cmd := newImportCmd()
	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"export.csv"}))
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestImportRequestFromManifest(t *testing.T) {
	manifest := writeManifest(t, `{"runInfo":{"runId":"run-42","endDate":"2024-01-31T00:00:00"},"blobs":[{"blobName":"part_0_0001.csv"}]}`)

	req, err := importOptions{manifest: manifest}.request("/tmp/exports/part_0_0001.csv")
	require.NoError(t, err)
	assert.Equal(t, "run-42", req.RunID)
	assert.Equal(t, "part_0_0001.csv", req.FileName)
	require.NotNil(t, req.ReportDate)
	assert.Equal(t, "2024-01-31", req.ReportDate.Format(time.DateOnly))

	req, err = importOptions{manifest: manifest, runID: " run-override ", reportDate: "2024-02-01"}.request("export.csv")
	require.NoError(t, err)
	assert.Equal(t, "run-override", req.RunID)
	assert.Equal(t, "2024-02-01", req.ReportDate.Format(time.DateOnly))

	req, err = importOptions{}.request("export.csv")
	require.NoError(t, err)
	assert.Empty(t, req.RunID)
	assert.Nil(t, req.ReportDate)
}

func TestImportRequestErrors(t *testing.T) {
	_, err := importOptions{manifest: writeManifest(t, `{"runInfo":{}}`)}.request("export.csv")
	assert.ErrorIs(t, err, blob.ErrInvalidManifest)

	_, err = importOptions{manifest: writeManifest(t, `{"runInfo":{"runId":"r","endDate":"31/01/2024"}}`)}.request("export.csv")
	assert.ErrorIs(t, err, blob.ErrInvalidManifest)

	_, err = importOptions{manifest: filepath.Join(t.TempDir(), "missing.json")}.request("export.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = importOptions{reportDate: "01/31/2024"}.request("export.csv")
	assert.Error(t, err)
}

// runSnapshots answers FindByRunID from a fixed snapshot and records deletes.
type runSnapshots struct {
	snapshotdomain.Service
	existing  *snapshotdomain.Snapshot
	deleted   []snowflake.ID
	deleteErr error
}

func (s *runSnapshots) FindByRunID(_ context.Context, runID string) (*snapshotdomain.Snapshot, error) {
	if s.existing != nil && s.existing.RunID == runID {
		return s.existing, nil
	}
	return nil, nil
}

func (s *runSnapshots) Delete(_ context.Context, id snowflake.ID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func TestPrepareRun(t *testing.T) {
	snapshot := func(status snapshotdomain.Status) *snapshotdomain.Snapshot {
		return &snapshotdomain.Snapshot{ID: 7, RunID: "run-1", Status: status}
	}

	tests := []struct {
		name        string
		existing    *snapshotdomain.Snapshot
		runID       string
		overwrite   bool
		wantProceed bool
		wantDeleted bool
	}{
		{name: "generated run id", runID: "", wantProceed: true},
		{name: "new run", existing: snapshot(snapshotdomain.StatusComplete), runID: "run-2", wantProceed: true},
		{name: "complete run skipped", existing: snapshot(snapshotdomain.StatusComplete), runID: "run-1"},
		{name: "in progress run skipped", existing: snapshot(snapshotdomain.StatusInProgress), runID: "run-1"},
		{name: "failed run replaced", existing: snapshot(snapshotdomain.StatusFailed), runID: "run-1", wantProceed: true, wantDeleted: true},
		{name: "overwrite replaces complete run", existing: snapshot(snapshotdomain.StatusComplete), runID: "run-1", overwrite: true, wantProceed: true, wantDeleted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshots := &runSnapshots{existing: tt.existing}
			_, proceed, err := prepareRun(context.Background(), snapshots, tt.runID, tt.overwrite)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProceed, proceed)
			if tt.wantDeleted {
				assert.Equal(t, []snowflake.ID{7}, snapshots.deleted)
			} else {
				assert.Empty(t, snapshots.deleted)
			}
		})
	}
}

func TestPrepareRunDeleteError(t *testing.T) {
	snapshots := &runSnapshots{
		existing:  &snapshotdomain.Snapshot{ID: 7, RunID: "run-1", Status: snapshotdomain.StatusFailed},
		deleteErr: errors.New("locked"),
	}
	_, proceed, err := prepareRun(context.Background(), snapshots, "run-1", false)
	require.Error(t, err)
	assert.False(t, proceed)
}

func TestPrintImportResult(t *testing.T) {
	var buf bytes.Buffer
	printImportResult(&buf, &ingestdomain.Result{
		Snapshot: &snapshotdomain.Snapshot{RunID: "run-1", Status: snapshotdomain.StatusComplete},
		Imported: 3,
		Skipped:  2,
		Reasons:  map[string]int{"missing SubscriptionId": 1, "invalid date": 1},
	})

	out := buf.String()
	assert.Contains(t, out, "snapshot run-1 (complete): imported 3 rows, skipped 2")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("invalid date")), bytes.Index(buf.Bytes(), []byte("missing SubscriptionId")))
}

func TestPrintFetchReports(t *testing.T) {
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printFetchReports(&buf, []blob.FetchReport{
		{Source: "prod", Period: "20240101-20240131", Status: "imported", Runs: []blob.RunOutcome{
			{RunID: "run-a", ReportDate: &day, Size: 2048, Status: blob.RunImported, Imported: 10},
		}},
		{Source: "dev", Period: "20240101-20240131", Status: "no manifests"},
	})

	out := buf.String()
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "2024-01-31")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "no manifests")
}

func TestPrintDownloadedRuns(t *testing.T) {
	var buf bytes.Buffer
	printDownloadedRuns(&buf, []blob.DownloadedRun{
		{RunID: "run-a", Size: 2048, Dir: "downloads/run-a", Kept: []string{"downloads/run-a/part_0.csv"}},
	})

	out := buf.String()
	assert.Contains(t, out, "run-a  2.0 KB  downloads/run-a")
	assert.Contains(t, out, "exists, skipped: part_0.csv")
}
