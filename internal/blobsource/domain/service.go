package domain

import (
	"context"
	"errors"
	"time"

	"github.com/vilosource/cielo-azure-billing/internal/config"
)

type Service interface {
	// Sync upserts definitions by name and deactivates sources no longer declared.
	Sync(ctx context.Context, defs []config.SourceDefinition) error
	List(ctx context.Context, activeOnly bool) ([]BlobSource, error)
	GetByName(ctx context.Context, name string) (*BlobSource, error)
	GetByID(ctx context.Context, id string) (*BlobSource, error)
	RecordAttempt(ctx context.Context, source *BlobSource) error
	// RecordResult stores the status text; importedAt is set only on successful imports.
	RecordResult(ctx context.Context, source *BlobSource, status string, importedAt *time.Time) error
}

var (
	ErrInvalidName = errors.New("invalid_source_name")
	ErrInvalidID   = errors.New("invalid_source_id")
	ErrNotFound    = errors.New("source_not_found")
)
