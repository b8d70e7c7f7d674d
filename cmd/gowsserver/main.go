package main

import (
	"github.com/gbdevw/gowsserver/cmd/gowsserver/configuration"
	"github.com/gbdevw/gowsserver/cmd/gowsserver/providers"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideServerOptions),
		fx.Provide(providers.ProvideApplication),
		// Use invoke to force dependency to be instanciated and hooks to be registered and executed
		fx.Invoke(providers.RegisterApplicationHooks),
	).Run()
}
