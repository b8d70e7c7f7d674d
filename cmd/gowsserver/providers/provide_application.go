package providers

import (
	"context"

	"github.com/gbdevw/gowsserver/cmd/gowsserver/configuration"
	"github.com/gbdevw/gowsserver/demowsserver"
	"github.com/gbdevw/gowsserver/echowsserver"
	"github.com/gbdevw/gowsserver/wsserver"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Websocket application served by the binary.
type Application interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Addr() string
}

func ProvideServerOptions(config configuration.Configuration) (*wsserver.ServerOptions, error) {
	opts := wsserver.NewServerOptions().
		WithAddr(config.ListenAddr).
		WithIdleTimeoutTicks(config.IdleTimeoutTicks).
		WithReusePort(config.ReusePort)
	if config.TLSCertFile != "" || config.TLSKeyFile != "" {
		opts = opts.WithTLS(config.TLSCertFile, config.TLSKeyFile)
	}
	if err := wsserver.Validate(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func ProvideApplication(
	config configuration.Configuration,
	opts *wsserver.ServerOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (Application, error) {
	// Global meter provider is used
	if config.Application == configuration.ApplicationDemo {
		srv, err := demowsserver.NewDemoWebsocketServer(opts, config.HeartbeatInterval, logger, tracerProvider, nil)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
	srv, err := echowsserver.NewEchoWebsocketServer(opts, logger, tracerProvider, nil)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func RegisterApplicationHooks(lc fx.Lifecycle, app Application, config configuration.Configuration, logger *zap.Logger) {
	// Register Start and Stop hooks to Start and Stop the server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := app.Start(ctx); err != nil {
				return err
			}
			logger.Info("websocket server started",
				zap.String("application", config.Application),
				zap.String("addr", app.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Stop(ctx)
		},
	})
}
