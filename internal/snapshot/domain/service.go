package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Open creates an in_progress snapshot for a new run.
	Open(ctx context.Context, req OpenRequest) (*Snapshot, error)
	Complete(ctx context.Context, id snowflake.ID) error
	Fail(ctx context.Context, id snowflake.ID) error
	Delete(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id string) (*Snapshot, error)
	// FindByRunID returns nil without error when the run is unknown.
	FindByRunID(ctx context.Context, runID string) (*Snapshot, error)
	List(ctx context.Context, req ListRequest) ([]Snapshot, error)

	// LatestForDate returns the most recently created complete snapshot with
	// entries on date across all sources, or nil.
	LatestForDate(ctx context.Context, date time.Time) (*Snapshot, error)
	// Latest resolves one snapshot per active source, optionally for a report date.
	Latest(ctx context.Context, date *time.Time) (Resolution, error)
	// LatestForMonth resolves, per active source, the newest complete snapshot
	// with entries inside the month starting at month.
	LatestForMonth(ctx context.Context, month time.Time) (Resolution, error)
	LatestPerSubscription(ctx context.Context, date *time.Time) ([]SubscriptionSnapshot, error)
	ReportDates(ctx context.Context) ([]time.Time, error)
}

type OpenRequest struct {
	RunID      string
	ReportDate *time.Time
	FileName   string
	SourceID   *snowflake.ID
}

type ListRequest struct {
	SourceID string
	Status   string
	Limit    int
}

var (
	ErrInvalidID         = errors.New("invalid_snapshot_id")
	ErrInvalidRunID      = errors.New("invalid_run_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidSourceID   = errors.New("invalid_source_id")
	ErrDuplicateRun      = errors.New("duplicate_run")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrNotFound          = errors.New("snapshot_not_found")
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusInProgress, StatusComplete, StatusFailed:
		return Status(value), nil
	default:
		return "", ErrInvalidStatus
	}
}
