package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
)

// Importer turns one export file into a snapshot and its cost entries.
type Importer interface {
	// ImportFile opens path, transparently gunzipping *.gz files.
	ImportFile(ctx context.Context, path string, req ImportRequest) (*Result, error)
	// Import reads CSV records from r. The snapshot is left failed when the
	// stream or the store breaks, and complete otherwise.
	Import(ctx context.Context, r io.Reader, req ImportRequest) (*Result, error)
}

// Resolver finds or creates the reference entities of a row.
type Resolver interface {
	Resolve(ctx context.Context, row *Row) (*Entities, error)
}

type ImportRequest struct {
	// RunID defaults to a generated manual-<ulid> identifier.
	RunID      string
	ReportDate *time.Time
	FileName   string
	SourceID   *snowflake.ID
}

type Result struct {
	Snapshot *snapshotdomain.Snapshot
	Imported int
	// Skipped counts rows rejected by validation or resolution plus lines
	// already present for the snapshot.
	Skipped    int
	Duplicates int
	Reasons    map[string]int
}

// MaxRecordedReasons bounds the distinct skip reasons kept on a Result.
const MaxRecordedReasons = 20
