package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIgnore(ctx context.Context, db *gorm.DB, source *BlobSource) (bool, error)
	UpdateDefinition(ctx context.Context, db *gorm.DB, id snowflake.ID, baseFolder string, active bool, updatedAt time.Time) error
	// DeactivateMissing soft-disables every active source whose name is not in names.
	DeactivateMissing(ctx context.Context, db *gorm.DB, names []string, updatedAt time.Time) (int64, error)
	RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	RecordStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, importedAt *time.Time, at time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BlobSource, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*BlobSource, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]BlobSource, error)
}
