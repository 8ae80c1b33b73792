package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo subscriptiondomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo subscriptiondomain.Repository
}

func New(p Params) subscriptiondomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("subscription.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) ([]subscriptiondomain.Subscription, error) {
	filter := subscriptiondomain.ListFilter{
		Name:  strings.TrimSpace(req.Name),
		Limit: req.Limit,
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil || customerID == 0 {
			return nil, subscriptiondomain.ErrInvalidCustomerID
		}
		filter.CustomerID = &customerID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []subscriptiondomain.Subscription{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	subID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || subID == 0 {
		return nil, subscriptiondomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return item, nil
}
