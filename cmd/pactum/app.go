package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/core-coin/pactum/internal/blockchain"
	"github.com/core-coin/pactum/internal/config"
	"github.com/core-coin/pactum/internal/http_api"
	"github.com/core-coin/pactum/internal/locker"
	"github.com/core-coin/pactum/internal/metrics"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/internal/notificator"
	"github.com/core-coin/pactum/internal/pactum"
	"github.com/core-coin/pactum/internal/repository"
	"github.com/core-coin/pactum/pkg/logger"
)

const redisLockTTL = 30 * time.Second

// verifierModule provides everything needed to check payments, without storage.
func verifierModule(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(provideLogger),
		fx.WithLogger(func(log *logger.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.SugaredLogger.Desugar().Named("fx")}
		}),
		fx.Provide(provideVerifier),
	)
}

// coreModule adds storage, locking, notifications and the subscription manager.
func coreModule(cfg *config.Config) fx.Option {
	return fx.Options(
		verifierModule(cfg),
		fx.Provide(
			provideRepository,
			provideLocker,
			provideNotifier,
			provideManager,
		),
	)
}

// serverModule starts the HTTP API and the periodic sweep.
var serverModule = fx.Options(
	fx.Provide(provideAPIServer),
	fx.Invoke(metrics.InitMetrics),
	fx.Invoke(startServer),
)

func provideLogger(cfg *config.Config, lc fx.Lifecycle) (*logger.Logger, error) {
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func provideVerifier(cfg *config.Config, log *logger.Logger) (models.PaymentVerifier, error) {
	verifiers, err := blockchain.NewVerifiers(cfg, log)
	if err != nil {
		return nil, err
	}
	return blockchain.NewDispatcher(log, verifiers...), nil
}

func provideRepository(cfg *config.Config, lc fx.Lifecycle, log *logger.Logger) (models.Repository, error) {
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// provideLocker always serializes in process and adds Redis when several instances share the database.
func provideLocker(cfg *config.Config, lc fx.Lifecycle, log *logger.Logger) (locker.Locker, error) {
	local := locker.NewKeyedMutex()
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, user locks are process local")
		return local, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return locker.Chain{local, locker.NewRedisLocker(client, redisLockTTL, log)}, nil
}

func provideNotifier(cfg *config.Config, lc fx.Lifecycle, log *logger.Logger) (models.EventNotifier, error) {
	if cfg.TelegramBotToken == "" {
		return notificator.NewNotificator(log, nil), nil
	}

	tg, err := notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go tg.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return notificator.NewNotificator(log, tg), nil
}

func provideManager(
	cfg *config.Config,
	repo models.Repository,
	verifier models.PaymentVerifier,
	userLocker locker.Locker,
	notifier models.EventNotifier,
	lc fx.Lifecycle,
	log *logger.Logger,
) *pactum.Pactum {
	manager := pactum.NewPactum(repo, verifier, userLocker, notifier, pactum.OptionsFromConfig(cfg), log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			manager.Wait()
			return nil
		},
	})
	return manager
}

func provideAPIServer(cfg *config.Config, manager *pactum.Pactum, log *logger.Logger) models.APIServer {
	return http_api.NewHTTPServer(manager, cfg.APIPort, cfg.AdminToken, log)
}

func startServer(lc fx.Lifecycle, server models.APIServer, manager *pactum.Pactum) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go server.Start()
			go manager.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return server.Shutdown()
		},
	})
}
