package costentry

import (
	"github.com/vilosource/cielo-azure-billing/internal/costentry/repository"
	"github.com/vilosource/cielo-azure-billing/internal/costentry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("costentry.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
