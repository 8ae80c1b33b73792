package blob

import "go.uber.org/fx"

var Module = fx.Module("blob.fetcher",
	fx.Provide(fx.Annotate(NewAzureStores, fx.As(new(StoreProvider)))),
	fx.Provide(NewFetcher),
)
