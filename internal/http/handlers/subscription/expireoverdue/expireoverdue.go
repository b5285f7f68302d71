// Package expireoverdue реализует административный HTTP-обработчик
// массового завершения просроченных подписок вне расписания планировщика.
package expireoverdue

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// Service описывает интерфейс массового завершения подписок.
type Service interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// Handler обрабатывает административные запросы завершения подписок.
type Handler struct {
	log   *slog.Logger
	admin Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, admin Service) *Handler {
	return &Handler{log: log, admin: admin}
}

// ServeHTTP godoc
// @Summary Завершение просроченных подписок
// @Description Переводит все активные подписки с прошедшей датой окончания в статус expired. Доступно только администратору.
// @Tags Admin
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} response.Response "Число завершенных подписок"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/subscriptions/expire-overdue [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.expireoverdue"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	expired, err := h.admin.ExpireOverdue(r.Context())
	if err != nil {
		log.Error("failed to expire overdue subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("overdue subscriptions expired", slog.Int64("count", expired))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"expired": expired,
	}))
}
