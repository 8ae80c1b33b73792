package domain

import (
	"context"
	"errors"
	"time"

	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db/pagination"
)

type Service interface {
	// Aggregate groups the entries of the resolved snapshot set. When Date is
	// set only entries on that day are included.
	Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResult, error)
	// ResourceGroupTotals sums per resource inside one resource group, highest
	// cost first.
	ResourceGroupTotals(ctx context.Context, req ResourceGroupTotalsRequest) (*AggregateResult, error)
	// AvailableDates lists entry dates in month from the newest snapshot of
	// every active source.
	AvailableDates(ctx context.Context, month time.Time) ([]time.Time, error)
	List(ctx context.Context, req ListRequest) ([]EntryView, pagination.PageInfo, error)
}

type AggregateRequest struct {
	Dimensions []Dimension
	Date       *time.Time
	Filter     Filter
}

type ResourceGroupTotalsRequest struct {
	ResourceGroup string
	Date          *time.Time
	Filter        Filter
}

type AggregateResult struct {
	Date       *time.Time
	Dimensions []Dimension
	Resolution snapshotdomain.Resolution
	Groups     []Group
}

type ListRequest struct {
	Date       *time.Time
	Filter     Filter
	Pagination pagination.Pagination
}

var ErrResourceGroupRequired = errors.New("resource_group_required")
