package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIgnore(ctx context.Context, db *gorm.DB, meter *Meter) (bool, error)
	UpdateServiceFamily(ctx context.Context, db *gorm.DB, id snowflake.ID, serviceFamily string, updatedAt time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Meter, error)
	FindByMeterID(ctx context.Context, db *gorm.DB, meterID string) (*Meter, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Meter, error)
}

type ListFilter struct {
	Category string
	Limit    int
}
