package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() meterdomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, m *meterdomain.Meter) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "meter_id"}}, DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateServiceFamily(ctx context.Context, db *gorm.DB, id snowflake.ID, serviceFamily string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE meters SET service_family = ?, updated_at = ? WHERE id = ?`,
		serviceFamily,
		updatedAt,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	err := db.WithContext(ctx).Raw(
		`SELECT id, meter_id, name, category, subcategory, service_family, unit, created_at, updated_at
		 FROM meters WHERE id = ?`,
		id,
	).Scan(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.ID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) FindByMeterID(ctx context.Context, db *gorm.DB, meterID string) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	err := db.WithContext(ctx).Raw(
		`SELECT id, meter_id, name, category, subcategory, service_family, unit, created_at, updated_at
		 FROM meters WHERE meter_id = ?`,
		meterID,
	).Scan(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.ID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter meterdomain.ListFilter) ([]meterdomain.Meter, error) {
	query := db.WithContext(ctx).Model(&meterdomain.Meter{})
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var meters []meterdomain.Meter
	if err := query.Order("category ASC, name ASC, id ASC").Find(&meters).Error; err != nil {
		return nil, err
	}
	return meters, nil
}
