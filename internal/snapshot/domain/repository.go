package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, s *Snapshot) error
	// Transition moves an in_progress snapshot to status and reports whether a row changed.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Snapshot, error)
	FindByRunID(ctx context.Context, db *gorm.DB, runID string) (*Snapshot, error)
	// Delete removes the snapshot together with its cost entries.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Snapshot, error)

	LatestCompleteWithEntriesOn(ctx context.Context, db *gorm.DB, date time.Time) (*Snapshot, error)
	LatestCompleteForSource(ctx context.Context, db *gorm.DB, sourceID snowflake.ID) (*Snapshot, error)
	HighestCompleteForSourceReportDate(ctx context.Context, db *gorm.DB, sourceID snowflake.ID, reportDate time.Time) (*Snapshot, error)
	LatestCompleteForSourceWithEntriesBetween(ctx context.Context, db *gorm.DB, sourceID snowflake.ID, start, end time.Time) (*Snapshot, error)
	LatestPerSubscription(ctx context.Context, db *gorm.DB, date *time.Time) ([]SubscriptionSnapshot, error)
	CompleteReportDates(ctx context.Context, db *gorm.DB) ([]time.Time, error)
}

type ListFilter struct {
	SourceID *snowflake.ID
	Status   Status
	Limit    int
}
