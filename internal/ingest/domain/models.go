package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Export column names.
const (
	ColCustomerTenantID      = "customerTenantId"
	ColSubscriptionID        = "SubscriptionId"
	ColSubscriptionName      = "subscriptionName"
	ColResourceID            = "ResourceId"
	ColProductOrderName      = "productOrderName"
	ColResourceGroupName     = "resourceGroupName"
	ColResourceLocation      = "resourceLocation"
	ColMeterID               = "meterId"
	ColMeterName             = "meterName"
	ColMeterCategory         = "meterCategory"
	ColMeterSubCategory      = "meterSubCategory"
	ColServiceFamily         = "serviceFamily"
	ColUnitOfMeasure         = "unitOfMeasure"
	ColDate                  = "date"
	ColCostInUSD             = "costInUsd"
	ColCostInBillingCurrency = "costInBillingCurrency"
	ColBillingCurrency       = "billingCurrency"
	ColQuantity              = "quantity"
	ColUnitPrice             = "unitPrice"
	ColPayGPrice             = "PayGPrice"
	ColPricingModel          = "pricingModel"
	ColChargeType            = "chargeType"
	ColPublisherName         = "publisherName"
	ColCostCenter            = "costCenter"
	ColTags                  = "tags"
)

// Row is one export record after parsing and cleanup.
type Row struct {
	TenantID         string
	SubscriptionID   string
	SubscriptionName string

	ResourceID    string
	ResourceName  *string
	ResourceGroup *string
	Location      *string

	MeterID          string
	MeterName        string
	MeterCategory    string
	MeterSubcategory *string
	ServiceFamily    *string
	Unit             string

	Date                  time.Time
	CostInUSD             decimal.Decimal
	CostInBillingCurrency decimal.NullDecimal
	Quantity              decimal.Decimal
	UnitPrice             decimal.Decimal
	PaygPrice             decimal.NullDecimal
	BillingCurrency       string
	PricingModel          string
	ChargeType            string
	PublisherName         string
	CostCenter            string
	Tags                  datatypes.JSONMap
}

// Entities holds the reference rows a cost entry points at.
type Entities struct {
	CustomerID     snowflake.ID
	SubscriptionID snowflake.ID
	ResourceID     snowflake.ID
	MeterID        snowflake.ID
}
