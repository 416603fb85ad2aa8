package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tush00nka/unzipbot/internal/config"
	"tush00nka/unzipbot/internal/handler"
	"tush00nka/unzipbot/internal/pkg/logger"
	"tush00nka/unzipbot/internal/pkg/tg"
	"tush00nka/unzipbot/internal/repository"
	"tush00nka/unzipbot/internal/service"
	"tush00nka/unzipbot/internal/workspace"
)

// Run поднимает бота и все включенные конфигурацией зависимости и работает до
// отмены ctx. После отмены ждет завершения уже начатых распаковок.
func Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if log == nil {
		log = logger.New(cfg.LogLevel, cfg.LogFormat)
	}

	workspaces, err := workspace.NewManager(workspace.Mode(cfg.WorkspaceMode), cfg.WorkspaceDir, logger.Module(log, "workspace"))
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	adapter, err := tg.NewTelegramAdapter(cfg.TelegramToken, tg.AdapterOptions{
		Debug:          cfg.TelegramDebug,
		APIEndpoint:    cfg.TelegramAPIEndpoint,
		FileEndpoint:   cfg.TelegramFileEndpoint,
		RequestTimeout: cfg.UploadTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}

	var (
		options []service.RelayOption
		checks  []handler.HealthCheck
		history handler.HistorySource
	)

	if cfg.DSN != "" {
		db, err := repository.NewDB(cfg.DSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := repository.CloseDB(db); err != nil {
				log.Warn("failed to close database", "error", err)
			}
		}()

		relayRepo := repository.NewRelayRepository(db)
		options = append(options, service.WithRecorder(relayRepo))
		history = relayRepo
		checks = append(checks, handler.HealthCheck{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return repository.PingDB(ctx, db) },
		})
		log.Info("relay history enabled")
	}

	if cfg.RedisAddr != "" {
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		options = append(options, service.WithClaimer(repository.NewRequestClaimRepository(rdb, cfg.RequestClaimTTL)))
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		log.Info("request claims enabled", "ttl", cfg.RequestClaimTTL)
	}

	if cfg.S3BucketName != "" {
		s3Service, err := service.NewS3Service(ctx, cfg, log)
		if err != nil {
			return err
		}
		options = append(options, service.WithMirror(s3Service))
		checks = append(checks, handler.HealthCheck{Name: "s3", Check: s3Service.HealthCheck})
	}

	relay := service.NewRelayService(adapter, workspaces, service.RelayOptions{
		MaxFileSize:     cfg.MaxFileSize,
		DownloadTimeout: cfg.DownloadTimeout,
		ExtractTimeout:  cfg.ExtractTimeout,
		UploadTimeout:   cfg.UploadTimeout,
	}, log, options...)

	bot := handler.NewBotHandler(relay, adapter, handler.BotOptions{
		MaxFileSize:      cfg.MaxFileSize,
		AllowlistEnabled: cfg.AllowlistEnabled,
		AllowedUsers:     cfg.AllowedUsers,
		MaxConcurrent:    cfg.MaxConcurrentRelays,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.ServerPort != "" {
		server := NewServer(handler.NewOpsHandler(relay.Metrics(), history, checks...), log)
		g.Go(func() error { return server.Run(gctx, cfg.ServerPort) })
	}

	g.Go(func() error {
		adapter.Listen(gctx, bot.HandleUpdate)
		log.Info("waiting for in-flight relays", "count", relay.Metrics().InFlight.Load())
		bot.Wait()
		return nil
	})

	return g.Wait()
}
