package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscription is an Azure billing subscription owned by one customer.
type Subscription struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID string       `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_subscription_id" json:"subscription_id"`
	Name           string       `gorm:"type:text;not null;default:''" json:"name"`
	CustomerID     snowflake.ID `gorm:"not null;index" json:"customer_id"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
