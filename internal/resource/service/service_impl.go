package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const backfillBatchSize = 500

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  resourcedomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  resourcedomain.Repository
	clock clock.Clock
}

func New(p Params) resourcedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("resource.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, req resourcedomain.ListRequest) ([]resourcedomain.Resource, error) {
	items, err := s.repo.List(ctx, s.db, resourcedomain.ListFilter{
		ResourceGroup: req.ResourceGroup,
		Name:          req.Name,
		Limit:         req.Limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []resourcedomain.Resource{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*resourcedomain.Resource, error) {
	resourceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || resourceID == 0 {
		return nil, resourcedomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, resourceID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, resourcedomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) BackfillNames(ctx context.Context) (int, error) {
	var (
		updated int
		afterID snowflake.ID
	)

	for {
		batch, err := s.repo.ListMissingName(ctx, s.db, afterID, backfillBatchSize)
		if err != nil {
			return updated, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			item := &batch[i]
			afterID = item.ID

			name := resourcedomain.NameFromID(item.ResourceID)
			if name == nil {
				continue
			}
			item.ResourceName = name
			item.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdateAttributes(ctx, s.db, item); err != nil {
				return updated, err
			}
			updated++
		}
	}

	s.log.Info("resource names backfilled", zap.Int("updated", updated))
	return updated, nil
}
