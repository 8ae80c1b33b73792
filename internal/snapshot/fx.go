package snapshot

import (
	"github.com/vilosource/cielo-azure-billing/internal/snapshot/repository"
	"github.com/vilosource/cielo-azure-billing/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
