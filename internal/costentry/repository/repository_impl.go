package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() costdomain.Repository {
	return &repo{}
}

var lineColumns = []clause.Column{
	{Name: "snapshot_id"},
	{Name: "date"},
	{Name: "subscription_id"},
	{Name: "resource_id"},
	{Name: "meter_id"},
	{Name: "quantity"},
	{Name: "unit_price"},
}

const (
	totalUSDExpr     = "COALESCE(SUM(COALESCE(ce.cost_in_usd, 0)), 0)"
	totalBillingExpr = "COALESCE(SUM(COALESCE(ce.cost_in_billing_currency, 0)), 0)"
)

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *costdomain.CostEntry) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: lineColumns, DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountBySnapshot(ctx context.Context, db *gorm.DB, snapshotID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&costdomain.CostEntry{}).Where("snapshot_id = ?", snapshotID).Count(&count).Error
	return count, err
}

func (r *repo) Aggregate(ctx context.Context, db *gorm.DB, query costdomain.AggregateQuery) ([]costdomain.Group, error) {
	if len(query.Dimensions) == 0 {
		return nil, costdomain.ErrInvalidGroupBy
	}
	if len(query.SnapshotIDs) == 0 {
		return []costdomain.Group{}, nil
	}

	columns := make([]string, 0, len(query.Dimensions))
	selects := make([]string, 0, len(query.Dimensions)+3)
	for i, dim := range query.Dimensions {
		col := dim.Column()
		if col == "" {
			return nil, costdomain.ErrInvalidGroupBy
		}
		columns = append(columns, col)
		selects = append(selects, fmt.Sprintf("%s AS d%d", col, i))
	}
	selects = append(selects,
		totalUSDExpr+" AS total_usd",
		totalBillingExpr+" AS total_billing",
		"COUNT(*) AS entries",
	)

	order := strings.Join(columns, ", ")
	if query.ByTotalDesc {
		order = "total_usd DESC, " + order
	}

	rows, err := scoped(ctx, db, query.SnapshotIDs, query.Date, query.Filter).
		Select(strings.Join(selects, ", ")).
		Group(strings.Join(columns, ", ")).
		Order(order).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []costdomain.Group{}
	for rows.Next() {
		raw := make([]any, len(query.Dimensions))
		dest := make([]any, 0, len(raw)+3)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		var group costdomain.Group
		dest = append(dest, &group.TotalUSD, &group.TotalBilling, &group.Entries)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		group.Values = make([]*string, len(raw))
		for i, value := range raw {
			group.Values[i] = dimensionValue(value)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *repo) List(ctx context.Context, db *gorm.DB, query costdomain.ListQuery) ([]costdomain.EntryView, error) {
	if len(query.SnapshotIDs) == 0 {
		return []costdomain.EntryView{}, nil
	}

	q := scoped(ctx, db, query.SnapshotIDs, query.Date, query.Filter).
		Select(`ce.id, ce.snapshot_id, ce.date,
			sub.subscription_id AS subscription_id, sub.name AS subscription_name,
			r.resource_id AS resource_id, r.resource_name, r.resource_group, r.location,
			m.meter_id AS meter_id, m.name AS meter_name, m.category AS meter_category,
			ce.quantity, ce.unit_price, ce.cost_in_usd, ce.cost_in_billing_currency,
			ce.billing_currency, ce.pricing_model, ce.charge_type, ce.publisher_name,
			ce.cost_center, ce.tags`)
	if query.AfterID != 0 {
		q = q.Where("ce.id > ?", query.AfterID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var items []costdomain.EntryView
	if err := q.Order("ce.id ASC").Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DistinctDates(ctx context.Context, db *gorm.DB, snapshotIDs []snowflake.ID, start, end time.Time) ([]time.Time, error) {
	if len(snapshotIDs) == 0 {
		return []time.Time{}, nil
	}

	var rows []struct {
		Date time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT ce.date AS date FROM cost_entries ce
		WHERE ce.snapshot_id IN ? AND ce.date >= ? AND ce.date < ?
		ORDER BY ce.date ASC`,
		snapshotIDs,
		start,
		end,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		dates = append(dates, snapshotdomain.DayOf(row.Date))
	}
	return dates, nil
}

func scoped(ctx context.Context, db *gorm.DB, snapshotIDs []snowflake.ID, date *time.Time, filter costdomain.Filter) *gorm.DB {
	q := db.WithContext(ctx).
		Table("cost_entries AS ce").
		Joins("JOIN subscriptions sub ON sub.id = ce.subscription_id").
		Joins("JOIN resources r ON r.id = ce.resource_id").
		Joins("JOIN meters m ON m.id = ce.meter_id").
		Where("ce.snapshot_id IN ?", snapshotIDs)
	if date != nil {
		q = q.Where("ce.date = ?", *date)
	}
	return applyFilter(q, filter)
}

func applyFilter(q *gorm.DB, filter costdomain.Filter) *gorm.DB {
	exact := []struct {
		column string
		value  string
	}{
		{"sub.subscription_id", filter.SubscriptionID},
		{"r.resource_group", filter.ResourceGroup},
		{"r.resource_name", filter.ResourceName},
		{"r.location", filter.Location},
		{"m.category", filter.MeterCategory},
		{"m.subcategory", filter.MeterSubcategory},
		{"ce.pricing_model", filter.PricingModel},
		{"ce.publisher_name", filter.PublisherName},
		{"ce.charge_type", filter.ChargeType},
		{"ce.cost_center", filter.CostCenter},
	}
	for _, f := range exact {
		if value := strings.TrimSpace(f.value); value != "" {
			q = q.Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", f.column), value)
		}
	}

	if filter.MinCost != nil {
		q = q.Where("ce.cost_in_usd >= ?", *filter.MinCost)
	}
	if filter.MaxCost != nil {
		q = q.Where("ce.cost_in_usd <= ?", *filter.MaxCost)
	}
	if filter.SourceID != nil {
		q = q.Where("ce.snapshot_id IN (SELECT id FROM snapshots WHERE source_id = ?)", *filter.SourceID)
	}
	if key := strings.TrimSpace(filter.TagKey); key != "" {
		if filter.TagValue != nil {
			q = q.Where(datatypes.JSONQuery("ce.tags").Equals(*filter.TagValue, key))
		} else {
			q = q.Where(datatypes.JSONQuery("ce.tags").HasKey(key))
		}
	}
	return q
}

func dimensionValue(value any) *string {
	var s string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.UTC().Format(time.DateOnly)
	default:
		s = fmt.Sprint(v)
	}
	return &s
}
