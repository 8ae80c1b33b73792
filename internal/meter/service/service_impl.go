package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo meterdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo meterdomain.Repository
}

func New(p Params) meterdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("meter.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req meterdomain.ListRequest) ([]meterdomain.Meter, error) {
	items, err := s.repo.List(ctx, s.db, meterdomain.ListFilter{
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []meterdomain.Meter{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*meterdomain.Meter, error) {
	meterID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || meterID == 0 {
		return nil, meterdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, meterID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, meterdomain.ErrNotFound
	}
	return item, nil
}
