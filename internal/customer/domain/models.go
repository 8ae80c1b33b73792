package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is the tenant that owns one or more billing subscriptions.
type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  string       `gorm:"type:text;not null;uniqueIndex:ux_customers_tenant_id" json:"tenant_id"`
	Name      *string      `gorm:"type:text" json:"name,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
