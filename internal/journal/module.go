package journal

import (
	"context"

	"github.com/evildarkarchon/unpackrr/config"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewServiceFromConfig),
	fx.Invoke(RegisterShutdown),
)

func NewServiceFromConfig(cfg *config.Config, logger *logging.Logger) (*Service, error) {
	maxSizeBytes := int64(cfg.JournalSizeLimitMB) * 1024 * 1024
	return NewService(cfg.JournalFilePath, maxSizeBytes, logger)
}

func RegisterShutdown(lc fx.Lifecycle, service *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return service.Close()
		},
	})
}
