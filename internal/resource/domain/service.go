package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	// BackfillNames derives resource_name for every resource that lacks one.
	BackfillNames(ctx context.Context) (int, error)
}

type ListRequest struct {
	ResourceGroup string
	Name          string
	Limit         int
}

var (
	ErrInvalidID = errors.New("invalid_resource_id")
	ErrNotFound  = errors.New("resource_not_found")
)
