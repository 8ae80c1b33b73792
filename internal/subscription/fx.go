package subscription

import (
	"github.com/vilosource/cielo-azure-billing/internal/subscription/repository"
	"github.com/vilosource/cielo-azure-billing/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
