package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      costdomain.Repository
	Snapshots snapshotdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      costdomain.Repository
	snapshots snapshotdomain.Service
}

func New(p Params) costdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("costentry.service"),
		repo:      p.Repo,
		snapshots: p.Snapshots,
	}
}

func (s *Service) Aggregate(ctx context.Context, req costdomain.AggregateRequest) (*costdomain.AggregateResult, error) {
	if len(req.Dimensions) == 0 {
		return nil, costdomain.ErrInvalidGroupBy
	}
	return s.aggregate(ctx, req.Dimensions, dayPtr(req.Date), req.Filter, false)
}

func (s *Service) ResourceGroupTotals(ctx context.Context, req costdomain.ResourceGroupTotalsRequest) (*costdomain.AggregateResult, error) {
	group := strings.ToLower(strings.TrimSpace(req.ResourceGroup))
	if group == "" {
		return nil, costdomain.ErrResourceGroupRequired
	}
	filter := req.Filter
	filter.ResourceGroup = group

	dims := []costdomain.Dimension{costdomain.DimResourceID, costdomain.DimResourceName}
	return s.aggregate(ctx, dims, dayPtr(req.Date), filter, true)
}

func (s *Service) aggregate(
	ctx context.Context,
	dims []costdomain.Dimension,
	date *time.Time,
	filter costdomain.Filter,
	byTotalDesc bool,
) (*costdomain.AggregateResult, error) {
	resolution, err := s.snapshots.Latest(ctx, date)
	if err != nil {
		return nil, err
	}

	groups, err := s.repo.Aggregate(ctx, s.db, costdomain.AggregateQuery{
		SnapshotIDs: resolution.IDs(),
		Date:        date,
		Filter:      filter,
		Dimensions:  dims,
		ByTotalDesc: byTotalDesc,
	})
	if err != nil {
		return nil, err
	}

	return &costdomain.AggregateResult{
		Date:       date,
		Dimensions: dims,
		Resolution: resolution,
		Groups:     groups,
	}, nil
}

func (s *Service) AvailableDates(ctx context.Context, month time.Time) ([]time.Time, error) {
	resolution, err := s.snapshots.LatestForMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.repo.DistinctDates(ctx, s.db, resolution.IDs(), start, start.AddDate(0, 1, 0))
}

// List pages through entries of the snapshot authoritative for the date, or
// of the latest snapshot per source when no date is given.
func (s *Service) List(ctx context.Context, req costdomain.ListRequest) ([]costdomain.EntryView, pagination.PageInfo, error) {
	var afterID snowflake.ID
	if req.Pagination.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.Pagination.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
	}

	date := dayPtr(req.Date)
	var snapshotIDs []snowflake.ID
	if date != nil {
		snapshot, err := s.snapshots.LatestForDate(ctx, *date)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		if snapshot != nil {
			snapshotIDs = []snowflake.ID{snapshot.ID}
		}
	} else {
		resolution, err := s.snapshots.Latest(ctx, nil)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		snapshotIDs = resolution.IDs()
	}

	limit := req.Pagination.Limit()
	items, err := s.repo.List(ctx, s.db, costdomain.ListQuery{
		SnapshotIDs: snapshotIDs,
		Date:        date,
		Filter:      req.Filter,
		AfterID:     afterID,
		Limit:       limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	return pagination.BuildCursorPageInfo(items, limit, func(item costdomain.EntryView) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})
}

func dayPtr(date *time.Time) *time.Time {
	if date == nil {
		return nil
	}
	day := snapshotdomain.DayOf(*date)
	return &day
}
