// Package middlewarectx содержит HTTP middleware аутентификации и
// проверки подписки.
//
// JWTMiddleware проверяет заголовок Authorization: токен сначала ищется
// в черном списке, затем проверяется подпись и срок действия. При успехе
// в контекст запроса кладутся идентификатор, email и роль пользователя.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/jwt"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserID — ключ для идентификатора пользователя в контексте.
	UserID Key = "user_id"
	// Email — ключ для email пользователя в контексте.
	Email Key = "email"
	// Role — ключ для роли пользователя в контексте.
	Role Key = "role"
	// AccessToken — ключ для строки access-токена в контексте.
	// Нужен обработчикам logout, которые помещают токен в черный список.
	AccessToken Key = "access_token"
)

// TokenVerifier описывает проверки access-токена.
type TokenVerifier interface {
	// IsBlacklisted проверяет присутствие токена в черном списке.
	IsBlacklisted(ctx context.Context, tokenStr string) (bool, error)
	// VerifyAccess проверяет подпись и срок действия токена.
	VerifyAccess(tokenStr string) (*jwt.CustomClaims, error)
}

// UserIDFromContext достает идентификатор пользователя из контекста.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserID).(int64)
	return id, ok
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT
// в заголовке Authorization.
//
// Порядок фиксирован: сначала черный список, затем подпись. Токен из
// черного списка отклоняется даже при валидной подписи.
func JWTMiddleware(tokens TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			blacklisted, err := tokens.IsBlacklisted(r.Context(), tokenStr)
			if err != nil {
				log.Error("blacklist check failed", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			if blacklisted {
				log.Warn("blacklisted token rejected")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			claims, err := tokens.VerifyAccess(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserID, claims.UserID)
			ctx = context.WithValue(ctx, Email, claims.Email)
			ctx = context.WithValue(ctx, Role, claims.Role)
			ctx = context.WithValue(ctx, AccessToken, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin пропускает только пользователей с ролью admin.
// Ставится после JWTMiddleware.
func RequireAdmin(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(Role).(string)
			if role != "admin" {
				log.Warn("admin route rejected", slog.String("role", role))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
