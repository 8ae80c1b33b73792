package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Snapshot records one import run of one export file.
type Snapshot struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	RunID      string        `gorm:"type:text;not null;uniqueIndex:ux_snapshots_run_id" json:"run_id"`
	ReportDate *time.Time    `gorm:"type:date;index" json:"report_date,omitempty"`
	FileName   string        `gorm:"type:text;not null;default:''" json:"file_name"`
	SourceID   *snowflake.ID `gorm:"index" json:"source_id,omitempty"`
	Status     Status        `gorm:"type:text;not null;index" json:"status"`
	CreatedAt  time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

func (Snapshot) TableName() string { return "snapshots" }

// MissingSource explains why an active source contributed no snapshot.
type MissingSource struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

const (
	ReasonNoSnapshot        = "no snapshot"
	ReasonNoEntriesForDate  = "no entries for date"
	ReasonNoEntriesForMonth = "no entries for month"
)

// Resolution is the authoritative snapshot set for one query.
type Resolution struct {
	Snapshots      []Snapshot      `json:"snapshots"`
	Missing        []MissingSource `json:"sources_missing"`
	SourcesQueried int             `json:"sources_queried"`
}

// IDs returns the allow-list of snapshot ids for cost queries.
func (r Resolution) IDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(r.Snapshots))
	for _, s := range r.Snapshots {
		ids = append(ids, s.ID)
	}
	return ids
}

// SubscriptionSnapshot pairs a subscription with its latest complete snapshot.
type SubscriptionSnapshot struct {
	SubscriptionID string       `json:"subscription_id"`
	SnapshotID     snowflake.ID `json:"snapshot_id"`
}

// DayOf truncates t to midnight UTC of its calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
