package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Customer, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
}

type ListRequest struct {
	TenantID string
	Limit    int
}

var (
	ErrInvalidID       = errors.New("invalid_customer_id")
	ErrInvalidTenantID = errors.New("invalid_tenant_id")
	ErrNotFound        = errors.New("customer_not_found")
)
