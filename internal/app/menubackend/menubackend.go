// Package menubackend собирает HTTP-приложение: хранилище, миграции,
// кеш, сервисы безопасности аккаунтов и маршруты.
package menubackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/qeematech/menu-backend/internal/cache"
	"github.com/qeematech/menu-backend/internal/config"
	"github.com/qeematech/menu-backend/internal/lib/jwt"
	"github.com/qeematech/menu-backend/internal/migrations"
	authservice "github.com/qeematech/menu-backend/internal/services/auth"
	downgradeservice "github.com/qeematech/menu-backend/internal/services/downgrade"
	guardservice "github.com/qeematech/menu-backend/internal/services/loginguard"
	notifyservice "github.com/qeematech/menu-backend/internal/services/notify"
	adminservice "github.com/qeematech/menu-backend/internal/services/subscriptionadmin"
	tokenservice "github.com/qeematech/menu-backend/internal/services/token"
	"github.com/qeematech/menu-backend/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и его зависимости.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New создает приложение: подключает хранилище, применяет миграции,
// поднимает redis и собирает сервисы с маршрутами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	accessMaker := jwt.NewMaker(cfg.Tokens.AccessSecret, cfg.Tokens.AccessTTL)

	guard := guardservice.NewGuardService(db, db, cfg.Security.FailOpenLockCheck, logger)
	tokens := tokenservice.NewTokenService(db, db, db, accessMaker,
		cfg.Tokens.RefreshTTL, cfg.Security.FailOpenBlacklist, logger)
	auth := authservice.NewAuthService(db, guard, tokens, logger)
	downgrade := downgradeservice.NewDowngradeService(db, db, db, cacheRedis, nil, logger)
	// Уведомления из HTTP-приложения пишутся только в базу, без брокера.
	notifier := notifyservice.NewNotifyService(db, nil, logger)
	admin := adminservice.NewAdminService(db, db, notifier, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, auth, tokens, downgrade, admin, db)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
