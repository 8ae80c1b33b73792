package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnore inserts c unless the tenant already exists and reports whether a row was written.
	InsertIgnore(ctx context.Context, db *gorm.DB, c *Customer) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByTenantID(ctx context.Context, db *gorm.DB, tenantID string) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Customer, error)
}

type ListFilter struct {
	TenantID string
	Limit    int
}
