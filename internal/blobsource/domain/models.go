package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BlobSource is a named cost export feed in Azure blob storage.
type BlobSource struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null;uniqueIndex:ux_blob_sources_name" json:"name"`
	BaseFolder      string       `gorm:"type:text;not null" json:"base_folder"`
	Active          bool         `gorm:"not null;default:true" json:"active"`
	LastAttemptedAt *time.Time   `json:"last_attempted_at,omitempty"`
	LastImportedAt  *time.Time   `json:"last_imported_at,omitempty"`
	LastStatus      string       `gorm:"type:text;not null;default:''" json:"last_status"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (BlobSource) TableName() string { return "blob_sources" }

const (
	StatusImported    = "imported"
	StatusSkipped     = "skipped"
	StatusNoManifests = "no manifests"
	StatusDryRun      = "dry run"
	statusErrorPrefix = "error: "
)

// ErrorStatus formats a failure message for LastStatus.
func ErrorStatus(err error) string {
	if err == nil {
		return statusErrorPrefix + "unknown"
	}
	return statusErrorPrefix + err.Error()
}
