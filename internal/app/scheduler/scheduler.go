// Package scheduler собирает фоновое приложение жизненного цикла:
// проходы по подпискам и очистку устаревших данных безопасности.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/qeematech/menu-backend/internal/cache"
	"github.com/qeematech/menu-backend/internal/config"
	"github.com/qeematech/menu-backend/internal/lib/jwt"
	"github.com/qeematech/menu-backend/internal/lib/lock"
	"github.com/qeematech/menu-backend/internal/rabbitmq"
	cleanupservice "github.com/qeematech/menu-backend/internal/services/cleanup"
	downgradeservice "github.com/qeematech/menu-backend/internal/services/downgrade"
	lifecycleservice "github.com/qeematech/menu-backend/internal/services/lifecycle"
	guardservice "github.com/qeematech/menu-backend/internal/services/loginguard"
	notifyservice "github.com/qeematech/menu-backend/internal/services/notify"
	tokenservice "github.com/qeematech/menu-backend/internal/services/token"
	"github.com/qeematech/menu-backend/internal/storage/repository"
)

// App представляет фоновое приложение жизненного цикла подписок.
type App struct {
	lifecycle *lifecycleservice.LifecycleService
	cleanup   *cleanupservice.CleanupService
	conn      *amqp.Connection
	ch        *amqp.Channel
	db        *repository.Storage
	logger    *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр фонового приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	queues := rabbitmq.GetNotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}
	locker := lock.NewRedisLocker(cacheRedis.Db)

	notifier := notifyservice.NewNotifyService(db, notifyservice.NewAmqpPublisher(ch), logger)
	downgrader := downgradeservice.NewDowngradeService(db, db, db, cacheRedis, notifier, logger)
	lifecycle := lifecycleservice.NewLifecycleService(db, downgrader, notifier, locker,
		cfg.Scheduler.LifecycleInterval, cfg.Scheduler.LockTTL, logger)
	guard := guardservice.NewGuardService(db, db, cfg.Security.FailOpenLockCheck, logger)
	accessMaker := jwt.NewMaker(cfg.Tokens.AccessSecret, cfg.Tokens.AccessTTL)
	tokens := tokenservice.NewTokenService(db, db, db, accessMaker,
		cfg.Tokens.RefreshTTL, cfg.Security.FailOpenBlacklist, logger)
	cleanup := cleanupservice.NewCleanupService(guard, tokens, locker,
		cfg.Scheduler.CleanupInterval, cfg.Scheduler.LockTTL, logger)

	return &App{
		lifecycle: lifecycle,
		cleanup:   cleanup,
		conn:      conn,
		ch:        ch,
		db:        db,
		logger:    logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает проходы жизненного цикла и очистки до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.lifecycle.Run(ctx)
	go a.cleanup.Run(ctx)

	<-ctx.Done()

	a.logger.Info("shutting down lifecycle scheduler")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.Any("err", err))
	}

	return nil
}
