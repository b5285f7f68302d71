// Package logout реализует HTTP-обработчик выхода из текущей сессии.
// Access-токен берется из контекста запроса, куда его кладет
// middleware аутентификации.
package logout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/qeematech/menu-backend/internal/http/middlewarectx"
	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// Request — структура входных данных для выхода. Refresh-токен
// опционален: без него отзывается только access-токен.
type Request struct {
	RefreshToken string `json:"refresh_token"`
}

// Service описывает интерфейс бизнес-логики выхода.
type Service interface {
	Logout(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

// Handler обрабатывает HTTP-запросы выхода.
type Handler struct {
	log  *slog.Logger
	auth Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, auth Service) *Handler {
	return &Handler{log: log, auth: auth}
}

// ServeHTTP godoc
// @Summary Выход из текущей сессии
// @Description Помещает access-токен в черный список и отзывает refresh-токен.
// @Tags Auth
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request false "Refresh-токен (опционально)"
// @Success 200 {object} response.Response "Выход выполнен"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.auth.Logout(r.Context(), userID, accessToken, req.RefreshToken); err != nil {
		log.Error("logout failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("logout success", sl.UserID(userID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{"message": "logged out"}))
}
