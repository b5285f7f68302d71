package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// SubscriptionRepository переводит просроченные активные подписки
// пользователя в статус expired.
type SubscriptionRepository interface {
	// ExpireOverdueSubscriptionsForUser возвращает число переведенных строк.
	ExpireOverdueSubscriptionsForUser(ctx context.Context, userID int64) (int64, error)
}

// Downgrader выполняет защитную проверку лимитов на пути запроса.
type Downgrader interface {
	// CheckAndApplyDowngrade повторно применяет лимиты бесплатного плана,
	// если у пользователя нет активной платной подписки.
	CheckAndApplyDowngrade(ctx context.Context, userID int64) error
}

// SubscriptionCheckMiddleware на каждом запросе авторизованного
// пользователя переводит его просроченные активные подписки в expired и
// запускает защитную проверку лимитов. Срабатывает раньше планировщика,
// если пользователь активен между проходами.
//
// Ошибки здесь никогда не блокируют запрос: проверка вспомогательная,
// основную работу делает планировщик.
func SubscriptionCheckMiddleware(subs SubscriptionRepository, downgrader Downgrader, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SubscriptionCheckMiddleware"

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			log := log.With(slog.String("op", op))

			flipped, err := subs.ExpireOverdueSubscriptionsForUser(r.Context(), userID)
			if err != nil {
				log.Error("failed to expire overdue subscriptions", sl.UserID(userID), sl.Err(err))
			} else if flipped > 0 {
				log.Info("flipped overdue subscription to expired", sl.UserID(userID))
			}

			if err := downgrader.CheckAndApplyDowngrade(r.Context(), userID); err != nil {
				log.Error("defensive downgrade check failed", sl.UserID(userID), sl.Err(err))
			}

			next.ServeHTTP(w, r)
		})
	}
}
