package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Meter, error)
	GetByID(ctx context.Context, id string) (*Meter, error)
}

type ListRequest struct {
	Category string
	Limit    int
}

var (
	ErrNotFound  = errors.New("meter_not_found")
	ErrInvalidID = errors.New("invalid_meter_id")
)
