package service

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	"gorm.io/datatypes"
)

// Exports write US dates; ISO dates show up in hand-edited files.
var dateLayouts = []string{"1/2/2006", time.DateOnly}

var requiredColumns = []string{
	ingestdomain.ColCustomerTenantID,
	ingestdomain.ColSubscriptionID,
	ingestdomain.ColMeterID,
	ingestdomain.ColDate,
}

// Normalize parses one export record. The returned error is always a
// *RowError so the caller can skip the record and continue.
func Normalize(line int, record map[string]string) (*ingestdomain.Row, error) {
	get := func(key string) string {
		return strings.TrimSpace(record[key])
	}

	for _, col := range requiredColumns {
		if get(col) == "" {
			return nil, &ingestdomain.RowError{Line: line, Field: col, Err: ingestdomain.ErrMissingField}
		}
	}

	date, err := ParseDate(get(ingestdomain.ColDate))
	if err != nil {
		return nil, &ingestdomain.RowError{Line: line, Field: ingestdomain.ColDate, Err: err}
	}

	row := &ingestdomain.Row{
		TenantID:         get(ingestdomain.ColCustomerTenantID),
		SubscriptionID:   get(ingestdomain.ColSubscriptionID),
		SubscriptionName: get(ingestdomain.ColSubscriptionName),
		ResourceID:       get(ingestdomain.ColResourceID),
		ResourceGroup:    resourcedomain.NormalizeGroup(record[ingestdomain.ColResourceGroupName]),
		Location:         optional(get(ingestdomain.ColResourceLocation)),
		MeterID:          get(ingestdomain.ColMeterID),
		MeterName:        get(ingestdomain.ColMeterName),
		MeterCategory:    get(ingestdomain.ColMeterCategory),
		MeterSubcategory: optional(get(ingestdomain.ColMeterSubCategory)),
		ServiceFamily:    optional(get(ingestdomain.ColServiceFamily)),
		Unit:             get(ingestdomain.ColUnitOfMeasure),
		Date:             date,
		BillingCurrency:  get(ingestdomain.ColBillingCurrency),
		PricingModel:     get(ingestdomain.ColPricingModel),
		ChargeType:       get(ingestdomain.ColChargeType),
		PublisherName:    get(ingestdomain.ColPublisherName),
		CostCenter:       get(ingestdomain.ColCostCenter),
		Tags:             ParseTags(record[ingestdomain.ColTags]),
	}
	row.ResourceName = resourcedomain.NameFromID(row.ResourceID)

	amounts := []struct {
		col    string
		target *decimal.Decimal
	}{
		{ingestdomain.ColCostInUSD, &row.CostInUSD},
		{ingestdomain.ColQuantity, &row.Quantity},
		{ingestdomain.ColUnitPrice, &row.UnitPrice},
	}
	for _, a := range amounts {
		value, err := parseDecimal(get(a.col))
		if err != nil {
			return nil, &ingestdomain.RowError{Line: line, Field: a.col, Err: err}
		}
		*a.target = value
	}

	optionalAmounts := []struct {
		col    string
		target *decimal.NullDecimal
	}{
		{ingestdomain.ColCostInBillingCurrency, &row.CostInBillingCurrency},
		{ingestdomain.ColPayGPrice, &row.PaygPrice},
	}
	for _, a := range optionalAmounts {
		raw := get(a.col)
		if raw == "" {
			continue
		}
		value, err := parseDecimal(raw)
		if err != nil {
			return nil, &ingestdomain.RowError{Line: line, Field: a.col, Err: err}
		}
		*a.target = decimal.NewNullDecimal(value)
	}

	return row, nil
}

// ParseDate accepts MM/DD/YYYY (leading zeros optional) and YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ingestdomain.ErrInvalidDate
}

// ParseTags decodes the export tag column. Exports omit the surrounding
// braces, so both forms are accepted; anything else is kept under "raw".
func ParseTags(value string) datatypes.JSONMap {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	candidates := []string{value}
	if !strings.HasPrefix(value, "{") {
		candidates = append(candidates, "{"+value+"}")
	}
	for _, candidate := range candidates {
		var tags map[string]any
		if err := json.Unmarshal([]byte(candidate), &tags); err == nil && tags != nil {
			return datatypes.JSONMap(tags)
		}
	}
	return datatypes.JSONMap{"raw": value}
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ingestdomain.ErrInvalidDecimal
	}
	return d, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
