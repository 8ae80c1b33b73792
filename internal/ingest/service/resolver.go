package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxResolveAttempts = 3
	resolveBackoff     = 10 * time.Millisecond
)

type ResolverParams struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	CustomerRepo     customerdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	ResourceRepo     resourcedomain.Repository
	MeterRepo        meterdomain.Repository
}

// EntityResolver gets or creates reference entities by natural key. The
// unique indexes on those keys arbitrate concurrent importers; a lost insert
// race is followed by a re-fetch.
type EntityResolver struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	customerRepo     customerdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	resourceRepo     resourcedomain.Repository
	meterRepo        meterdomain.Repository
}

func NewResolver(p ResolverParams) *EntityResolver {
	return &EntityResolver{
		db:               p.DB,
		log:              p.Log.Named("ingest.resolver"),
		genID:            p.GenID,
		clock:            p.Clock,
		customerRepo:     p.CustomerRepo,
		subscriptionRepo: p.SubscriptionRepo,
		resourceRepo:     p.ResourceRepo,
		meterRepo:        p.MeterRepo,
	}
}

// Session returns a resolver that remembers entities seen during one import.
func (r *EntityResolver) Session() ingestdomain.Resolver {
	return &session{
		EntityResolver: r,
		customers:      map[string]*customerdomain.Customer{},
		subscriptions:  map[string]*subscriptiondomain.Subscription{},
		resources:      map[string]*resourcedomain.Resource{},
		meters:         map[string]*meterdomain.Meter{},
	}
}

func (r *EntityResolver) Resolve(ctx context.Context, row *ingestdomain.Row) (*ingestdomain.Entities, error) {
	return r.Session().Resolve(ctx, row)
}

type session struct {
	*EntityResolver

	customers     map[string]*customerdomain.Customer
	subscriptions map[string]*subscriptiondomain.Subscription
	resources     map[string]*resourcedomain.Resource
	meters        map[string]*meterdomain.Meter
}

func (s *session) Resolve(ctx context.Context, row *ingestdomain.Row) (*ingestdomain.Entities, error) {
	customer, err := s.customer(ctx, row.TenantID)
	if err != nil {
		return nil, err
	}
	subscription, err := s.subscription(ctx, row.SubscriptionID, row.SubscriptionName, customer.ID)
	if err != nil {
		return nil, err
	}
	resource, err := s.resource(ctx, row)
	if err != nil {
		return nil, err
	}
	meter, err := s.meter(ctx, row)
	if err != nil {
		return nil, err
	}

	return &ingestdomain.Entities{
		CustomerID:     customer.ID,
		SubscriptionID: subscription.ID,
		ResourceID:     resource.ID,
		MeterID:        meter.ID,
	}, nil
}

func (s *session) customer(ctx context.Context, tenantID string) (*customerdomain.Customer, error) {
	if cached, ok := s.customers[tenantID]; ok {
		return cached, nil
	}

	customer, created, err := getOrCreate(ctx,
		func() (*customerdomain.Customer, error) {
			return s.customerRepo.FindByTenantID(ctx, s.db, tenantID)
		},
		func() (*customerdomain.Customer, bool, error) {
			now := s.clock.Now()
			c := &customerdomain.Customer{ID: s.genID.Generate(), TenantID: tenantID, CreatedAt: now, UpdatedAt: now}
			inserted, err := s.customerRepo.InsertIgnore(ctx, s.db, c)
			return c, inserted, err
		},
	)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("created customer", zap.String("tenant_id", tenantID))
	}
	s.customers[tenantID] = customer
	return customer, nil
}

func (s *session) subscription(ctx context.Context, subscriptionID, name string, customerID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	subscription, ok := s.subscriptions[subscriptionID]
	if !ok {
		var created bool
		var err error
		subscription, created, err = getOrCreate(ctx,
			func() (*subscriptiondomain.Subscription, error) {
				return s.subscriptionRepo.FindBySubscriptionID(ctx, s.db, subscriptionID)
			},
			func() (*subscriptiondomain.Subscription, bool, error) {
				now := s.clock.Now()
				sub := &subscriptiondomain.Subscription{
					ID:             s.genID.Generate(),
					SubscriptionID: subscriptionID,
					Name:           name,
					CustomerID:     customerID,
					CreatedAt:      now,
					UpdatedAt:      now,
				}
				inserted, err := s.subscriptionRepo.InsertIgnore(ctx, s.db, sub)
				return sub, inserted, err
			},
		)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Info("created subscription", zap.String("subscription_id", subscriptionID))
		}
		s.subscriptions[subscriptionID] = subscription
	}

	if name != "" && subscription.Name != name {
		now := s.clock.Now()
		if err := s.subscriptionRepo.UpdateName(ctx, s.db, subscription.ID, name, now); err != nil {
			return nil, err
		}
		subscription.Name = name
		subscription.UpdatedAt = now
	}
	return subscription, nil
}

func (s *session) resource(ctx context.Context, row *ingestdomain.Row) (*resourcedomain.Resource, error) {
	resource, ok := s.resources[row.ResourceID]
	if !ok {
		var created bool
		var err error
		resource, created, err = getOrCreate(ctx,
			func() (*resourcedomain.Resource, error) {
				return s.resourceRepo.FindByResourceID(ctx, s.db, row.ResourceID)
			},
			func() (*resourcedomain.Resource, bool, error) {
				now := s.clock.Now()
				res := &resourcedomain.Resource{
					ID:            s.genID.Generate(),
					ResourceID:    row.ResourceID,
					ResourceName:  row.ResourceName,
					ResourceGroup: row.ResourceGroup,
					Location:      row.Location,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				inserted, err := s.resourceRepo.InsertIgnore(ctx, s.db, res)
				return res, inserted, err
			},
		)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Debug("created resource", zap.String("resource_id", row.ResourceID))
		}
		s.resources[row.ResourceID] = resource
	}

	changed := false
	if row.ResourceName != nil && resource.ResourceName == nil {
		resource.ResourceName = row.ResourceName
		changed = true
	}
	if row.ResourceGroup != nil && (resource.ResourceGroup == nil || *resource.ResourceGroup != *row.ResourceGroup) {
		resource.ResourceGroup = row.ResourceGroup
		changed = true
	}
	if row.Location != nil && resource.Location == nil {
		resource.Location = row.Location
		changed = true
	}
	if changed {
		resource.UpdatedAt = s.clock.Now()
		if err := s.resourceRepo.UpdateAttributes(ctx, s.db, resource); err != nil {
			return nil, err
		}
	}
	return resource, nil
}

func (s *session) meter(ctx context.Context, row *ingestdomain.Row) (*meterdomain.Meter, error) {
	meter, ok := s.meters[row.MeterID]
	if !ok {
		var created bool
		var err error
		meter, created, err = getOrCreate(ctx,
			func() (*meterdomain.Meter, error) {
				return s.meterRepo.FindByMeterID(ctx, s.db, row.MeterID)
			},
			func() (*meterdomain.Meter, bool, error) {
				now := s.clock.Now()
				m := &meterdomain.Meter{
					ID:            s.genID.Generate(),
					MeterID:       row.MeterID,
					Name:          row.MeterName,
					Category:      row.MeterCategory,
					Subcategory:   row.MeterSubcategory,
					ServiceFamily: row.ServiceFamily,
					Unit:          row.Unit,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				inserted, err := s.meterRepo.InsertIgnore(ctx, s.db, m)
				return m, inserted, err
			},
		)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Debug("created meter", zap.String("meter_id", row.MeterID))
		}
		s.meters[row.MeterID] = meter
	}

	if row.ServiceFamily != nil && (meter.ServiceFamily == nil || *meter.ServiceFamily != *row.ServiceFamily) {
		now := s.clock.Now()
		if err := s.meterRepo.UpdateServiceFamily(ctx, s.db, meter.ID, *row.ServiceFamily, now); err != nil {
			return nil, err
		}
		meter.ServiceFamily = row.ServiceFamily
		meter.UpdatedAt = now
	}
	return meter, nil
}

// getOrCreate looks the entity up, inserts it when absent and re-fetches
// when another writer won the insert.
func getOrCreate[T any](ctx context.Context, find func() (*T, error), create func() (*T, bool, error)) (*T, bool, error) {
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		existing, err := find()
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		entity, inserted, err := create()
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return nil, false, err
		}
		if inserted {
			return entity, true, nil
		}
		timer := time.NewTimer(time.Duration(attempt+1) * resolveBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, false, ingestdomain.ErrResolveConflict
}
