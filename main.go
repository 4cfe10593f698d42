package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/evildarkarchon/unpackrr/config"
	"github.com/evildarkarchon/unpackrr/internal/auth"
	"github.com/evildarkarchon/unpackrr/internal/batch"
	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/health"
	"github.com/evildarkarchon/unpackrr/internal/journal"
	"github.com/evildarkarchon/unpackrr/internal/logging"
	"github.com/evildarkarchon/unpackrr/internal/scan"
	"github.com/evildarkarchon/unpackrr/internal/ssl"
	"github.com/evildarkarchon/unpackrr/internal/websocket"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			os.Exit(runCLI(os.Args[2:]))
		case "check":
			os.Exit(runCheck(os.Args[2:]))
		}
	}

	runAgent()
}

func runAgent() {
	fx.New(
		config.Module,
		logging.Module,
		journal.Module,
		websocket.Module,
		scan.Module,
		extract.Module,
		batch.Module,
		health.Module,
		fx.WithLogger(func(logger *logging.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx").GetZap()}
		}),
		fx.Provide(NewEcho),
		fx.Invoke(RegisterRoutes),
		fx.Invoke(StartServer),
		fx.Invoke(StartInventory),
	).Run()
}

func NewEcho(logger *logging.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(logging.RequestLoggingMiddleware(logger))
	return e
}

func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	logger *logging.Logger,
	healthHandler *health.Handler,
	batchHandler *batch.Handler,
	wsHandler *websocket.Handler,
) {
	tokenMiddleware := auth.TokenMiddleware(cfg.AccessToken, logger)

	api := e.Group("/api")
	api.Use(tokenMiddleware)

	api.GET("/health", healthHandler.Health)

	api.POST("/scans", batchHandler.Scan)
	api.GET("/inventory", batchHandler.GetInventory)
	api.DELETE("/inventory/:index", batchHandler.RemoveEntry)
	api.POST("/inventory/filter-bad", batchHandler.FilterBad)
	api.POST("/archives/list", batchHandler.ListArchive)

	api.GET("/batches", batchHandler.ListBatches)
	api.POST("/batches", batchHandler.StartBatch)
	api.POST("/checks", batchHandler.StartCheck)
	api.GET("/batches/:batchId/status", batchHandler.GetBatchStatus)
	api.GET("/batches/:batchId/stream", batchHandler.StreamBatch)
	api.POST("/batches/:batchId/pause", batchHandler.PauseBatch)
	api.POST("/batches/:batchId/resume", batchHandler.ResumeBatch)
	api.POST("/batches/:batchId/cancel", batchHandler.CancelBatch)

	ws := e.Group("/ws")
	ws.Use(tokenMiddleware)
	ws.GET("/agent/status", wsHandler.HandleAgentWebSocket)
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *logging.Logger, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			address := ":" + cfg.Port
			start := func() error { return e.Start(address) }
			if cfg.TLSEnabled {
				certPath, keyPath, err := ssl.NewCertificateManager(cfg.TLSCertDir, logger).EnsureCertificates()
				if err != nil {
					return err
				}
				start = func() error { return e.StartTLS(address, certPath, keyPath) }
			}

			logger.Info("starting http server",
				zap.String("port", cfg.Port),
				zap.Bool("tls", cfg.TLSEnabled),
			)
			go func() {
				if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

// StartInventory scans the configured root once at startup and, with
// WATCH_ROOT set, rescans whenever its mod folders change.
func StartInventory(lc fx.Lifecycle, cfg *config.Config, service *batch.Service, logger *logging.Logger) {
	if cfg.ScanRoot == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var watcher *scan.Watcher
	if cfg.WatchRoot {
		watcher = scan.NewWatcher(cfg.ScanRoot, scan.DefaultDebounce, logger)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if _, err := service.Scan(ctx, ""); err != nil {
					logger.Warn("initial scan failed",
						zap.String("root", cfg.ScanRoot),
						zap.Error(err),
					)
				}
			}()

			if watcher == nil {
				return nil
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			go service.WatchChanges(ctx, watcher.Changes())
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if watcher != nil {
				watcher.Stop()
			}
			return nil
		},
	})
}
