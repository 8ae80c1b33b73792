package meter

import (
	"github.com/vilosource/cielo-azure-billing/internal/meter/repository"
	"github.com/vilosource/cielo-azure-billing/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
