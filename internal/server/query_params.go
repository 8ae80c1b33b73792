package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
)

const (
	dateOnlyLayout = "2006-01-02"
	monthLayout    = "2006-01"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return nil, ErrInvalidRequest
	}
	return &parsed, nil
}

func parseOptionalDecimal(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalDate accepts YYYY-MM-DD and returns UTC midnight.
func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateOnlyLayout, trimmed, time.UTC)
	if err != nil {
		return nil, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD")
	}
	return &parsed, nil
}

// parseMonth accepts YYYY-MM (or YYYY-M) and returns the first of the month.
func parseMonth(value string) (time.Time, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(value), "-")
	y, yErr := strconv.Atoi(year)
	m, mErr := strconv.Atoi(month)
	if !ok || yErr != nil || mErr != nil || y < 1 || m < 1 || m > 12 {
		return time.Time{}, newValidationError("month", "invalid_month", "month must be YYYY-MM")
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), nil
}

func formatOptionalDate(date *time.Time) *string {
	if date == nil {
		return nil
	}
	formatted := date.Format(dateOnlyLayout)
	return &formatted
}

// parseCostFilter reads the shared cost entry filters from the query string.
func parseCostFilter(c *gin.Context) (costdomain.Filter, error) {
	filter := costdomain.Filter{
		SubscriptionID:   strings.TrimSpace(c.Query("subscription_id")),
		ResourceGroup:    strings.TrimSpace(c.Query("resource_group")),
		ResourceName:     strings.TrimSpace(c.Query("resource_name")),
		Location:         strings.TrimSpace(c.Query("location")),
		MeterCategory:    strings.TrimSpace(c.Query("meter_category")),
		MeterSubcategory: strings.TrimSpace(c.Query("meter_subcategory")),
		PricingModel:     strings.TrimSpace(c.Query("pricing_model")),
		PublisherName:    strings.TrimSpace(c.Query("publisher_name")),
		ChargeType:       strings.TrimSpace(c.Query("charge_type")),
		CostCenter:       strings.TrimSpace(c.Query("cost_center")),
		TagKey:           strings.TrimSpace(c.Query("tag_key")),
	}

	var err error
	if filter.MinCost, err = parseOptionalDecimal(c.Query("min_cost")); err != nil {
		return filter, newValidationError("min_cost", "invalid_min_cost", "min_cost must be a decimal")
	}
	if filter.MaxCost, err = parseOptionalDecimal(c.Query("max_cost")); err != nil {
		return filter, newValidationError("max_cost", "invalid_max_cost", "max_cost must be a decimal")
	}
	if filter.SourceID, err = parseOptionalSnowflakeID(c.Query("source_id")); err != nil {
		return filter, newValidationError("source_id", "invalid_source_id", "invalid source_id")
	}
	if value, ok := c.GetQuery("tag_value"); ok && filter.TagKey != "" {
		value = strings.TrimSpace(value)
		filter.TagValue = &value
	}
	return filter, nil
}
