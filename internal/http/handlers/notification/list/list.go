// Package list реализует HTTP-обработчик списка уведомлений пользователя.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/qeematech/menu-backend/internal/http/middlewarectx"
	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
)

// defaultLimit — число уведомлений по умолчанию.
const defaultLimit = 50

// Repository описывает чтение уведомлений.
type Repository interface {
	// ListNotifications возвращает уведомления пользователя от новых к старым.
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
	// CountUnreadNotifications возвращает число непрочитанных уведомлений.
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
}

// Handler обрабатывает HTTP-запросы списка уведомлений.
type Handler struct {
	log  *slog.Logger
	repo Repository
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{log: log, repo: repo}
}

// ServeHTTP godoc
// @Summary Список уведомлений пользователя
// @Description Возвращает уведомления от новых к старым и число непрочитанных.
// @Tags Notifications
// @Security BearerAuth
// @Produce  json
// @Param limit query int false "Максимум уведомлений (по умолчанию 50)"
// @Success 200 {object} response.Response "Уведомления и счетчик непрочитанных"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /notifications [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.list"

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

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("limit must be a positive number"))
			return
		}
		limit = parsed
	}

	notifications, err := h.repo.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		log.Error("failed to list notifications", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	unread, err := h.repo.CountUnreadNotifications(r.Context(), userID)
	if err != nil {
		log.Error("failed to count unread notifications", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"notifications": notifications,
		"unread_count":  unread,
	}))
}
