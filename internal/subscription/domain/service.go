package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Subscription, error)
	GetByID(ctx context.Context, id string) (*Subscription, error)
}

type ListRequest struct {
	CustomerID string
	Name       string
	Limit      int
}

var (
	ErrInvalidID         = errors.New("invalid_subscription_id")
	ErrInvalidCustomerID = errors.New("invalid_customer_id")
	ErrNotFound          = errors.New("subscription_not_found")
)
