package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() resourcedomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, res *resourcedomain.Resource) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "resource_id"}}, DoNothing: true}).
		Create(res)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateAttributes(ctx context.Context, db *gorm.DB, res *resourcedomain.Resource) error {
	return db.WithContext(ctx).Exec(
		`UPDATE resources
		 SET resource_name = ?, resource_group = ?, location = ?, updated_at = ?
		 WHERE id = ?`,
		res.ResourceName,
		res.ResourceGroup,
		res.Location,
		res.UpdatedAt,
		res.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*resourcedomain.Resource, error) {
	var res resourcedomain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT id, resource_id, resource_name, resource_group, location, created_at, updated_at
		 FROM resources WHERE id = ?`,
		id,
	).Scan(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	return &res, nil
}

func (r *repo) FindByResourceID(ctx context.Context, db *gorm.DB, resourceID string) (*resourcedomain.Resource, error) {
	var res resourcedomain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT id, resource_id, resource_name, resource_group, location, created_at, updated_at
		 FROM resources WHERE resource_id = ?`,
		resourceID,
	).Scan(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	return &res, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter resourcedomain.ListFilter) ([]resourcedomain.Resource, error) {
	query := db.WithContext(ctx).Model(&resourcedomain.Resource{})
	if group := strings.TrimSpace(filter.ResourceGroup); group != "" {
		query = query.Where("resource_group = ?", strings.ToLower(group))
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where("LOWER(resource_name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []resourcedomain.Resource
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListMissingName(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]resourcedomain.Resource, error) {
	var items []resourcedomain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT id, resource_id, resource_name, resource_group, location, created_at, updated_at
		 FROM resources
		 WHERE (resource_name IS NULL OR resource_name = '') AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		afterID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
