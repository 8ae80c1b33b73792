package customer

import (
	"github.com/vilosource/cielo-azure-billing/internal/customer/repository"
	"github.com/vilosource/cielo-azure-billing/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
