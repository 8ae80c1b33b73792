package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIgnore(ctx context.Context, db *gorm.DB, r *Resource) (bool, error)
	// UpdateAttributes persists name, group and location as currently set on r.
	UpdateAttributes(ctx context.Context, db *gorm.DB, r *Resource) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resource, error)
	FindByResourceID(ctx context.Context, db *gorm.DB, resourceID string) (*Resource, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Resource, error)
	// ListMissingName pages through resources without a display name, ordered by id.
	ListMissingName(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Resource, error)
}

type ListFilter struct {
	ResourceGroup string
	Name          string
	Limit         int
}
