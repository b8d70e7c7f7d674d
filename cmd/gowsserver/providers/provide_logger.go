package providers

import (
	"github.com/gbdevw/gowsserver/cmd/gowsserver/configuration"
	"go.uber.org/zap"
)

func ProvideLogger(config configuration.Configuration) (*zap.Logger, error) {
	if config.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
