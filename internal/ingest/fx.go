package ingest

import (
	"github.com/vilosource/cielo-azure-billing/internal/ingest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest.service",
	fx.Provide(service.NewResolver),
	fx.Provide(service.New),
)
