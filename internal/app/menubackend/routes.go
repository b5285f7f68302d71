package menubackend

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/qeematech/menu-backend/internal/http/handlers/auth/login"
	"github.com/qeematech/menu-backend/internal/http/handlers/auth/logout"
	"github.com/qeematech/menu-backend/internal/http/handlers/auth/logoutall"
	"github.com/qeematech/menu-backend/internal/http/handlers/auth/refresh"
	notificationlist "github.com/qeematech/menu-backend/internal/http/handlers/notification/list"
	subscriptionexpire "github.com/qeematech/menu-backend/internal/http/handlers/subscription/expireoverdue"
	subscriptiongrant "github.com/qeematech/menu-backend/internal/http/handlers/subscription/grant"
	"github.com/qeematech/menu-backend/internal/http/middlewarectx"
	authservice "github.com/qeematech/menu-backend/internal/services/auth"
	downgradeservice "github.com/qeematech/menu-backend/internal/services/downgrade"
	adminservice "github.com/qeematech/menu-backend/internal/services/subscriptionadmin"
	tokenservice "github.com/qeematech/menu-backend/internal/services/token"
	"github.com/qeematech/menu-backend/internal/storage/repository"
)

// loginRateLimit ограничивает частоту запросов к открытым конечным
// точкам аутентификации. Подбор пароля дополнительно сдерживается
// блокировкой аккаунта на уровне сервиса.
var loginRateLimit = rate.NewLimiter(rate.Limit(10), 20)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	authService *authservice.AuthService,
	tokenService *tokenservice.TokenService,
	downgradeService *downgradeservice.DowngradeService,
	adminService *adminservice.AdminService,
	db *repository.Storage,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(loginRateLimit, logger))
			r.Post("/auth/login", login.New(logger, authService).ServeHTTP)
			r.Post("/auth/refresh", refresh.New(logger, authService).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenService, logger))
			r.Use(middlewarectx.SubscriptionCheckMiddleware(db, downgradeService, logger))
			r.Post("/auth/logout", logout.New(logger, authService).ServeHTTP)
			r.Post("/auth/logout-all", logoutall.New(logger, authService).ServeHTTP)
			r.Get("/notifications", notificationlist.New(logger, db).ServeHTTP)
		})

		// Административные конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenService, logger))
			r.Use(middlewarectx.RequireAdmin(logger))
			r.Post("/admin/subscriptions", subscriptiongrant.New(logger, adminService).ServeHTTP)
			r.Post("/admin/subscriptions/expire-overdue", subscriptionexpire.New(logger, adminService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
