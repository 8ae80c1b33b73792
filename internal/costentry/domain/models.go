package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CostEntry is one billed line item of an export. Rows are written once by
// the importer and removed only together with their snapshot.
type CostEntry struct {
	ID                    snowflake.ID        `gorm:"primaryKey" json:"id"`
	SnapshotID            snowflake.ID        `gorm:"not null;uniqueIndex:ux_cost_entries_line,priority:1;index" json:"snapshot_id"`
	Date                  time.Time           `gorm:"type:date;not null;uniqueIndex:ux_cost_entries_line,priority:2;index" json:"date"`
	SubscriptionID        snowflake.ID        `gorm:"not null;uniqueIndex:ux_cost_entries_line,priority:3;index" json:"subscription_id"`
	ResourceID            snowflake.ID        `gorm:"not null;uniqueIndex:ux_cost_entries_line,priority:4;index" json:"resource_id"`
	MeterID               snowflake.ID        `gorm:"not null;uniqueIndex:ux_cost_entries_line,priority:5;index" json:"meter_id"`
	Quantity              decimal.Decimal     `gorm:"type:decimal(20,10);not null;uniqueIndex:ux_cost_entries_line,priority:6" json:"quantity"`
	UnitPrice             decimal.Decimal     `gorm:"type:decimal(20,10);not null;uniqueIndex:ux_cost_entries_line,priority:7" json:"unit_price"`
	CostInUSD             decimal.Decimal     `gorm:"column:cost_in_usd;type:decimal(20,10);not null" json:"cost_in_usd"`
	CostInBillingCurrency decimal.NullDecimal `gorm:"type:decimal(20,10)" json:"cost_in_billing_currency"`
	PaygPrice             decimal.NullDecimal `gorm:"type:decimal(20,10)" json:"payg_price"`
	BillingCurrency       string              `gorm:"type:text;not null;default:''" json:"billing_currency"`
	PricingModel          string              `gorm:"type:text;not null;default:''" json:"pricing_model"`
	ChargeType            string              `gorm:"type:text;not null;default:''" json:"charge_type"`
	PublisherName         string              `gorm:"type:text;not null;default:''" json:"publisher_name"`
	CostCenter            string              `gorm:"type:text;not null;default:''" json:"cost_center"`
	Tags                  datatypes.JSONMap   `json:"tags"`
	CreatedAt             time.Time           `gorm:"not null" json:"created_at"`
}

func (CostEntry) TableName() string { return "cost_entries" }

// EntryView is a cost entry joined with its reference entities.
type EntryView struct {
	ID                    snowflake.ID        `json:"id"`
	SnapshotID            snowflake.ID        `json:"snapshot_id"`
	Date                  time.Time           `json:"date"`
	SubscriptionID        string              `json:"subscription_id"`
	SubscriptionName      string              `json:"subscription_name"`
	ResourceID            string              `json:"resource_id"`
	ResourceName          *string             `json:"resource_name"`
	ResourceGroup         *string             `json:"resource_group"`
	Location              *string             `json:"location"`
	MeterID               string              `json:"meter_id"`
	MeterName             string              `json:"meter_name"`
	MeterCategory         string              `json:"meter_category"`
	Quantity              decimal.Decimal     `json:"quantity"`
	UnitPrice             decimal.Decimal     `json:"unit_price"`
	CostInUSD             decimal.Decimal     `gorm:"column:cost_in_usd" json:"cost_in_usd"`
	CostInBillingCurrency decimal.NullDecimal `json:"cost_in_billing_currency"`
	BillingCurrency       string              `json:"billing_currency"`
	PricingModel          string              `json:"pricing_model"`
	ChargeType            string              `json:"charge_type"`
	PublisherName         string              `json:"publisher_name"`
	CostCenter            string              `json:"cost_center"`
	Tags                  datatypes.JSONMap   `json:"tags"`
}

// Group is one aggregated row. Values line up with the requested dimensions;
// a nil value means the dimension was null for the group.
type Group struct {
	Values       []*string
	TotalUSD     decimal.Decimal
	TotalBilling decimal.Decimal
	Entries      int64
}
