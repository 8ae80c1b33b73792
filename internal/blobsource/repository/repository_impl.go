package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() sourcedomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, name, base_folder, active, last_attempted_at, last_imported_at, last_status, created_at, updated_at
	FROM blob_sources`

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, source *sourcedomain.BlobSource) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(source)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateDefinition(ctx context.Context, db *gorm.DB, id snowflake.ID, baseFolder string, active bool, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE blob_sources SET base_folder = ?, active = ?, updated_at = ? WHERE id = ?`,
		baseFolder,
		active,
		updatedAt,
		id,
	).Error
}

func (r *repo) DeactivateMissing(ctx context.Context, db *gorm.DB, names []string, updatedAt time.Time) (int64, error) {
	query := db.WithContext(ctx).Model(&sourcedomain.BlobSource{}).Where("active = ?", true)
	if len(names) > 0 {
		query = query.Where("name NOT IN ?", names)
	}
	result := query.Updates(map[string]any{"active": false, "updated_at": updatedAt})
	return result.RowsAffected, result.Error
}

func (r *repo) RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE blob_sources SET last_attempted_at = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		id,
	).Error
}

func (r *repo) RecordStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, importedAt *time.Time, at time.Time) error {
	if importedAt != nil {
		return db.WithContext(ctx).Exec(
			`UPDATE blob_sources SET last_status = ?, last_imported_at = ?, updated_at = ? WHERE id = ?`,
			status,
			*importedAt,
			at,
			id,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE blob_sources SET last_status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sourcedomain.BlobSource, error) {
	var source sourcedomain.BlobSource
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&source).Error; err != nil {
		return nil, err
	}
	if source.ID == 0 {
		return nil, nil
	}
	return &source, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*sourcedomain.BlobSource, error) {
	var source sourcedomain.BlobSource
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE name = ?`, name).Scan(&source).Error; err != nil {
		return nil, err
	}
	if source.ID == 0 {
		return nil, nil
	}
	return &source, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]sourcedomain.BlobSource, error) {
	var sources []sourcedomain.BlobSource
	query := selectColumns
	args := []any{}
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name ASC`
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}
