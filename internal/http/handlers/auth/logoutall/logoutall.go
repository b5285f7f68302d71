// Package logoutall реализует HTTP-обработчик выхода из всех сессий.
package logoutall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/qeematech/menu-backend/internal/http/middlewarectx"
	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// Service описывает интерфейс бизнес-логики выхода из всех сессий.
type Service interface {
	LogoutAll(ctx context.Context, userID int64, accessToken string) (int64, error)
}

// Handler обрабатывает HTTP-запросы выхода из всех сессий.
type Handler struct {
	log  *slog.Logger
	auth Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, auth Service) *Handler {
	return &Handler{log: log, auth: auth}
}

// ServeHTTP godoc
// @Summary Выход из всех сессий
// @Description Отзывает все refresh-токены пользователя и помещает текущий access-токен в черный список.
// @Tags Auth
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} response.Response "Число отозванных сессий"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/logout-all [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logoutall"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}
	accessToken, _ := r.Context().Value(middlewarectx.AccessToken).(string)

	revoked, err := h.auth.LogoutAll(r.Context(), userID, accessToken)
	if err != nil {
		log.Error("logout all failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("logout all success", sl.UserID(userID), slog.Int64("sessions_revoked", revoked))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message":          "logged out everywhere",
		"sessions_revoked": revoked,
	}))
}
