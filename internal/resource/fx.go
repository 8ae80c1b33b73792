package resource

import (
	"github.com/vilosource/cielo-azure-billing/internal/resource/repository"
	"github.com/vilosource/cielo-azure-billing/internal/resource/service"
	"go.uber.org/fx"
)

var Module = fx.Module("resource.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
