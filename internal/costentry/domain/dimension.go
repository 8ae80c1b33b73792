package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Dimension is a permitted group-by field. Only values declared here can
// reach the generated SQL.
type Dimension int

const (
	DimSubscriptionID Dimension = iota + 1
	DimSubscriptionName
	DimResourceID
	DimResourceName
	DimResourceGroup
	DimLocation
	DimMeterCategory
	DimMeterSubcategory
	DimServiceFamily
	DimMeterName
	DimChargeType
	DimPricingModel
	DimPublisherName
	DimCostCenter
	DimBillingCurrency
	DimDate
)

var (
	ErrGroupByRequired = errors.New("group_by_required")
	ErrInvalidGroupBy  = errors.New("invalid_group_by")
	ErrUnknownGroupBy  = errors.New("unknown_group_by")
)

// ParseDimension accepts the export column names as well as the snake_case
// labels used in summary payloads.
func ParseDimension(name string) (Dimension, bool) {
	switch strings.TrimSpace(name) {
	case "subscriptionId", "subscription_id":
		return DimSubscriptionID, true
	case "subscriptionName", "subscription_name":
		return DimSubscriptionName, true
	case "resourceId", "resource_id":
		return DimResourceID, true
	case "resourceName", "resource_name":
		return DimResourceName, true
	case "resourceGroupName", "resource_group":
		return DimResourceGroup, true
	case "resourceLocation", "location":
		return DimLocation, true
	case "meterCategory", "meter_category":
		return DimMeterCategory, true
	case "meterSubCategory", "meter_subcategory":
		return DimMeterSubcategory, true
	case "serviceFamily", "service_family":
		return DimServiceFamily, true
	case "meterName", "meter_name":
		return DimMeterName, true
	case "chargeType", "charge_type":
		return DimChargeType, true
	case "pricingModel", "pricing_model":
		return DimPricingModel, true
	case "publisherName", "publisher_name":
		return DimPublisherName, true
	case "costCenter", "cost_center":
		return DimCostCenter, true
	case "billingCurrency", "billing_currency":
		return DimBillingCurrency, true
	case "date":
		return DimDate, true
	default:
		return 0, false
	}
}

// UnknownGroupByError lists the group_by names that are not dimensions.
// It unwraps to ErrInvalidGroupBy when no valid name was given and to
// ErrUnknownGroupBy otherwise.
type UnknownGroupByError struct {
	Fields []string
	Err    error
}

func (e *UnknownGroupByError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, strings.Join(e.Fields, ", "))
}

func (e *UnknownGroupByError) Unwrap() error {
	return e.Err
}

// ParseDimensions splits a comma separated group_by value. Any unknown name
// rejects the whole value with an *UnknownGroupByError.
func ParseDimensions(raw string) ([]Dimension, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrGroupByRequired
	}

	var dims []Dimension
	var unknown []string
	seen := map[Dimension]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, ok := ParseDimension(part)
		if !ok {
			unknown = append(unknown, part)
			continue
		}
		if seen[dim] {
			continue
		}
		seen[dim] = true
		dims = append(dims, dim)
	}
	switch {
	case len(unknown) > 0 && len(dims) == 0:
		return nil, &UnknownGroupByError{Fields: unknown, Err: ErrInvalidGroupBy}
	case len(unknown) > 0:
		return nil, &UnknownGroupByError{Fields: unknown, Err: ErrUnknownGroupBy}
	case len(dims) == 0:
		return nil, ErrInvalidGroupBy
	}
	return dims, nil
}

// Label is the snake_case key used in response payloads.
func (d Dimension) Label() string {
	switch d {
	case DimSubscriptionID:
		return "subscription_id"
	case DimSubscriptionName:
		return "subscription_name"
	case DimResourceID:
		return "resource_id"
	case DimResourceName:
		return "resource_name"
	case DimResourceGroup:
		return "resource_group"
	case DimLocation:
		return "location"
	case DimMeterCategory:
		return "meter_category"
	case DimMeterSubcategory:
		return "meter_subcategory"
	case DimServiceFamily:
		return "service_family"
	case DimMeterName:
		return "meter_name"
	case DimChargeType:
		return "charge_type"
	case DimPricingModel:
		return "pricing_model"
	case DimPublisherName:
		return "publisher_name"
	case DimCostCenter:
		return "cost_center"
	case DimBillingCurrency:
		return "billing_currency"
	case DimDate:
		return "date"
	default:
		return ""
	}
}

// Column is the SQL expression selecting the dimension from the joined
// cost_entries (ce), subscriptions (sub), resources (r) and meters (m).
func (d Dimension) Column() string {
	switch d {
	case DimSubscriptionID:
		return "sub.subscription_id"
	case DimSubscriptionName:
		return "sub.name"
	case DimResourceID:
		return "r.resource_id"
	case DimResourceName:
		return "r.resource_name"
	case DimResourceGroup:
		return "r.resource_group"
	case DimLocation:
		return "r.location"
	case DimMeterCategory:
		return "m.category"
	case DimMeterSubcategory:
		return "m.subcategory"
	case DimServiceFamily:
		return "m.service_family"
	case DimMeterName:
		return "m.name"
	case DimChargeType:
		return "ce.charge_type"
	case DimPricingModel:
		return "ce.pricing_model"
	case DimPublisherName:
		return "ce.publisher_name"
	case DimCostCenter:
		return "ce.cost_center"
	case DimBillingCurrency:
		return "ce.billing_currency"
	case DimDate:
		return "ce.date"
	default:
		return ""
	}
}
