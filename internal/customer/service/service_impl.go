package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo customerdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo customerdomain.Repository
}

func New(p Params) customerdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("customer.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req customerdomain.ListRequest) ([]customerdomain.Customer, error) {
	items, err := s.repo.List(ctx, s.db, customerdomain.ListFilter{
		TenantID: strings.TrimSpace(req.TenantID),
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []customerdomain.Customer{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*customerdomain.Customer, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || customerID == 0 {
		return nil, customerdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, customerdomain.ErrNotFound
	}
	return item, nil
}
