package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    snapshotdomain.Repository
	Sources sourcedomain.Service
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    snapshotdomain.Repository
	sources sourcedomain.Service
	clock   clock.Clock
}

func New(p Params) snapshotdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("snapshot.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		sources: p.Sources,
		clock:   p.Clock,
	}
}

func (s *Service) Open(ctx context.Context, req snapshotdomain.OpenRequest) (*snapshotdomain.Snapshot, error) {
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		return nil, snapshotdomain.ErrInvalidRunID
	}

	var reportDate *time.Time
	if req.ReportDate != nil {
		day := snapshotdomain.DayOf(*req.ReportDate)
		reportDate = &day
	}

	now := s.clock.Now()
	snapshot := &snapshotdomain.Snapshot{
		ID:         s.genID.Generate(),
		RunID:      runID,
		ReportDate: reportDate,
		FileName:   req.FileName,
		SourceID:   req.SourceID,
		Status:     snapshotdomain.StatusInProgress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, snapshot); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, snapshotdomain.ErrDuplicateRun
		}
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) Complete(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, snapshotdomain.StatusComplete)
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, snapshotdomain.StatusFailed)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, status snapshotdomain.Status) error {
	changed, err := s.repo.Transition(ctx, s.db, id, status, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return snapshotdomain.ErrInvalidTransition
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Delete(ctx, tx, id)
	})
}

func (s *Service) GetByID(ctx context.Context, id string) (*snapshotdomain.Snapshot, error) {
	snapshotID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || snapshotID == 0 {
		return nil, snapshotdomain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, snapshotID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, snapshotdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) FindByRunID(ctx context.Context, runID string) (*snapshotdomain.Snapshot, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, snapshotdomain.ErrInvalidRunID
	}
	return s.repo.FindByRunID(ctx, s.db, runID)
}

func (s *Service) List(ctx context.Context, req snapshotdomain.ListRequest) ([]snapshotdomain.Snapshot, error) {
	filter := snapshotdomain.ListFilter{Limit: req.Limit}
	if value := strings.TrimSpace(req.SourceID); value != "" {
		sourceID, err := snowflake.ParseString(value)
		if err != nil || sourceID == 0 {
			return nil, snapshotdomain.ErrInvalidSourceID
		}
		filter.SourceID = &sourceID
	}
	if value := strings.TrimSpace(req.Status); value != "" {
		status, err := snapshotdomain.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []snapshotdomain.Snapshot{}
	}
	return items, nil
}

func (s *Service) LatestForDate(ctx context.Context, date time.Time) (*snapshotdomain.Snapshot, error) {
	return s.repo.LatestCompleteWithEntriesOn(ctx, s.db, snapshotdomain.DayOf(date))
}

func (s *Service) Latest(ctx context.Context, date *time.Time) (snapshotdomain.Resolution, error) {
	if date == nil {
		return s.resolve(ctx, snapshotdomain.ReasonNoSnapshot, func(source sourcedomain.BlobSource) (*snapshotdomain.Snapshot, error) {
			return s.repo.LatestCompleteForSource(ctx, s.db, source.ID)
		})
	}

	day := snapshotdomain.DayOf(*date)
	return s.resolve(ctx, snapshotdomain.ReasonNoEntriesForDate, func(source sourcedomain.BlobSource) (*snapshotdomain.Snapshot, error) {
		return s.repo.HighestCompleteForSourceReportDate(ctx, s.db, source.ID, day)
	})
}

func (s *Service) LatestForMonth(ctx context.Context, month time.Time) (snapshotdomain.Resolution, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return s.resolve(ctx, snapshotdomain.ReasonNoEntriesForMonth, func(source sourcedomain.BlobSource) (*snapshotdomain.Snapshot, error) {
		return s.repo.LatestCompleteForSourceWithEntriesBetween(ctx, s.db, source.ID, start, end)
	})
}

func (s *Service) resolve(
	ctx context.Context,
	reason string,
	pick func(source sourcedomain.BlobSource) (*snapshotdomain.Snapshot, error),
) (snapshotdomain.Resolution, error) {
	sources, err := s.sources.List(ctx, true)
	if err != nil {
		return snapshotdomain.Resolution{}, err
	}

	resolution := snapshotdomain.Resolution{
		Snapshots:      []snapshotdomain.Snapshot{},
		Missing:        []snapshotdomain.MissingSource{},
		SourcesQueried: len(sources),
	}
	for _, source := range sources {
		snapshot, err := pick(source)
		if err != nil {
			return snapshotdomain.Resolution{}, err
		}
		if snapshot == nil {
			resolution.Missing = append(resolution.Missing, snapshotdomain.MissingSource{
				Source: source.Name,
				Reason: reason,
			})
			continue
		}
		resolution.Snapshots = append(resolution.Snapshots, *snapshot)
	}

	if len(resolution.Missing) > 0 {
		s.log.Debug("sources without snapshot",
			zap.Int("missing", len(resolution.Missing)),
			zap.Int("queried", resolution.SourcesQueried),
		)
	}
	return resolution, nil
}

func (s *Service) LatestPerSubscription(ctx context.Context, date *time.Time) ([]snapshotdomain.SubscriptionSnapshot, error) {
	var day *time.Time
	if date != nil {
		d := snapshotdomain.DayOf(*date)
		day = &d
	}
	rows, err := s.repo.LatestPerSubscription(ctx, s.db, day)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []snapshotdomain.SubscriptionSnapshot{}
	}
	return rows, nil
}

func (s *Service) ReportDates(ctx context.Context) ([]time.Time, error) {
	return s.repo.CompleteReportDates(ctx, s.db)
}
