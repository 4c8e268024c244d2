package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/matchrelay/matchrelay/internal/announce"
	"github.com/matchrelay/matchrelay/internal/config"
	"github.com/matchrelay/matchrelay/internal/gateway"
	"github.com/matchrelay/matchrelay/internal/handlers"
	"github.com/matchrelay/matchrelay/internal/identity"
	"github.com/matchrelay/matchrelay/internal/kv"
	"github.com/matchrelay/matchrelay/internal/logger"
	"github.com/matchrelay/matchrelay/internal/mail"
	"github.com/matchrelay/matchrelay/internal/pairing"
	"github.com/matchrelay/matchrelay/internal/queue"
	"github.com/matchrelay/matchrelay/internal/retention"
	"github.com/matchrelay/matchrelay/internal/schedule"
	"github.com/matchrelay/matchrelay/internal/server"
	"github.com/matchrelay/matchrelay/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) kv.Store {
	store := kv.NewRedisStore(log, cfg.Redis)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store
}

func provideGateway(log *slog.Logger, cfg config.Config) (gateway.Gateway, error) {
	timeout := time.Duration(cfg.Discord.TimeoutSeconds) * time.Second
	gw, err := gateway.NewDiscord(log, cfg.Discord.BotToken, timeout)
	if err != nil {
		return nil, fmt.Errorf("discord gateway: %w", err)
	}
	return gw, nil
}

func providePairing(log *slog.Logger, store kv.Store, gw gateway.Gateway, identities *identity.Service, cfg config.Config) *pairing.Service {
	return pairing.NewService(log, store, gw, identities, cfg.Discord.MatchChannelID)
}

func provideMailer(log *slog.Logger, cfg config.Config) queue.Mailer {
	if !cfg.Export.MailConfigured() {
		log.Warn("export mail delivery not configured")
		return nil
	}
	return mail.NewMailer(log, cfg.Export)
}

func provideShowdownHandler(log *slog.Logger, pairingService *pairing.Service, announceService *announce.Service, queueService *queue.Service, cfg config.Config) *handlers.ShowdownHandler {
	return handlers.NewShowdownHandler(log, pairingService, announceService, queueService, cfg.Discord.LFGChannelID, cfg.Announce.BannerText)
}

func provideInteractionsHandler(log *slog.Logger, identities *identity.Service, cfg config.Config) (*handlers.InteractionsHandler, error) {
	return handlers.NewInteractionsHandler(log, identities, cfg.Discord.PublicKey)
}

func provideCleanupHandler(log *slog.Logger, sweeper *retention.Service, cfg config.Config) *handlers.CleanupHandler {
	return handlers.NewCleanupHandler(log, sweeper, cfg.Discord.MatchChannelID, cfg.Retention.MaxAgeDays)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Server.SharedSecret, params.ServerHandlers...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			provideStore,
			provideGateway,

			identity.NewService,
			providePairing,
			announce.NewService,
			retention.NewService,
			queue.NewService,
			provideMailer,
			schedule.NewService,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideShowdownHandler),
			provideServerHandler(provideInteractionsHandler),
			provideServerHandler(provideCleanupHandler),
			provideServerHandler(handlers.NewExportHandler),

			provideServer,
		),
		fx.Invoke(
			startSchedule,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func startSchedule(lc fx.Lifecycle, log *slog.Logger, scheduler *schedule.Service, sweeper *retention.Service, queueService *queue.Service, mailer queue.Mailer, cfg config.Config) error {
	if cfg.Retention.Enabled {
		maxAge := time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour
		err := scheduler.Add("retention-sweep", cfg.Retention.Pattern, func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx, cfg.Discord.MatchChannelID, maxAge)
			return err
		})
		if err != nil {
			return err
		}
	}
	if cfg.Export.Enabled {
		if mailer == nil {
			return fmt.Errorf("export schedule enabled but mail delivery not configured")
		}
		err := scheduler.Add("daily-export", cfg.Export.Pattern, func(ctx context.Context) error {
			report, err := queueService.ExportPreviousDay(ctx)
			if err != nil {
				return err
			}
			return mailer.SendExport(ctx, report)
		})
		if err != nil {
			return err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting matchrelay %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
