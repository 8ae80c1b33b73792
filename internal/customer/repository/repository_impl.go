package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() customerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, c *customerdomain.Customer) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tenant_id"}}, DoNothing: true}).
		Create(c)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, created_at, updated_at
		 FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) FindByTenantID(ctx context.Context, db *gorm.DB, tenantID string) (*customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, created_at, updated_at
		 FROM customers WHERE tenant_id = ?`,
		tenantID,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter customerdomain.ListFilter) ([]customerdomain.Customer, error) {
	query := db.WithContext(ctx).Model(&customerdomain.Customer{})
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var customers []customerdomain.Customer
	if err := query.Order("id ASC").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
