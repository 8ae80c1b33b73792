package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes the entry unless an identical line already exists for the
	// snapshot, reporting whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, entry *CostEntry) (bool, error)
	CountBySnapshot(ctx context.Context, db *gorm.DB, snapshotID snowflake.ID) (int64, error)
	Aggregate(ctx context.Context, db *gorm.DB, query AggregateQuery) ([]Group, error)
	List(ctx context.Context, db *gorm.DB, query ListQuery) ([]EntryView, error)
	DistinctDates(ctx context.Context, db *gorm.DB, snapshotIDs []snowflake.ID, start, end time.Time) ([]time.Time, error)
}

// Filter narrows cost entries. String fields match case-insensitively and
// empty fields are ignored.
type Filter struct {
	SubscriptionID   string
	ResourceGroup    string
	ResourceName     string
	Location         string
	MeterCategory    string
	MeterSubcategory string
	PricingModel     string
	PublisherName    string
	ChargeType       string
	CostCenter       string
	MinCost          *decimal.Decimal
	MaxCost          *decimal.Decimal
	SourceID         *snowflake.ID
	TagKey           string
	TagValue         *string
}

type AggregateQuery struct {
	SnapshotIDs []snowflake.ID
	Date        *time.Time
	Filter      Filter
	Dimensions  []Dimension
	// ByTotalDesc orders groups by total cost instead of by dimension values.
	ByTotalDesc bool
}

type ListQuery struct {
	SnapshotIDs []snowflake.ID
	Date        *time.Time
	Filter      Filter
	AfterID     snowflake.ID
	Limit       int
}
