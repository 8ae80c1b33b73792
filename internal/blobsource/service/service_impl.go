package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  sourcedomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  sourcedomain.Repository
	clock clock.Clock
}

func New(p Params) sourcedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("blobsource.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Sync(ctx context.Context, defs []config.SourceDefinition) error {
	now := s.clock.Now()
	names := make([]string, 0, len(defs))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defs {
			name := strings.TrimSpace(def.Name)
			if name == "" {
				return sourcedomain.ErrInvalidName
			}
			names = append(names, name)

			existing, err := s.repo.FindByName(ctx, tx, name)
			if err != nil {
				return err
			}
			if existing == nil {
				_, err := s.repo.InsertIgnore(ctx, tx, &sourcedomain.BlobSource{
					ID:         s.genID.Generate(),
					Name:       name,
					BaseFolder: def.BaseFolder,
					Active:     def.IsActive(),
					CreatedAt:  now,
					UpdatedAt:  now,
				})
				if err != nil {
					return err
				}
				continue
			}
			if existing.BaseFolder == def.BaseFolder && existing.Active == def.IsActive() {
				continue
			}
			if err := s.repo.UpdateDefinition(ctx, tx, existing.ID, def.BaseFolder, def.IsActive(), now); err != nil {
				return err
			}
		}

		deactivated, err := s.repo.DeactivateMissing(ctx, tx, names, now)
		if err != nil {
			return err
		}
		if deactivated > 0 {
			s.log.Info("sources removed from configuration deactivated", zap.Int64("count", deactivated))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("sources synced", zap.Int("count", len(defs)))
	return nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]sourcedomain.BlobSource, error) {
	items, err := s.repo.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []sourcedomain.BlobSource{}
	}
	return items, nil
}

func (s *Service) GetByName(ctx context.Context, name string) (*sourcedomain.BlobSource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, sourcedomain.ErrInvalidName
	}
	item, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, sourcedomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*sourcedomain.BlobSource, error) {
	sourceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || sourceID == 0 {
		return nil, sourcedomain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, sourceID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, sourcedomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) RecordAttempt(ctx context.Context, source *sourcedomain.BlobSource) error {
	now := s.clock.Now()
	if err := s.repo.RecordAttempt(ctx, s.db, source.ID, now); err != nil {
		return err
	}
	source.LastAttemptedAt = &now
	return nil
}

func (s *Service) RecordResult(ctx context.Context, source *sourcedomain.BlobSource, status string, importedAt *time.Time) error {
	if err := s.repo.RecordStatus(ctx, s.db, source.ID, status, importedAt, s.clock.Now()); err != nil {
		return err
	}
	source.LastStatus = status
	if importedAt != nil {
		source.LastImportedAt = importedAt
	}
	return nil
}
