// Package grant реализует административный HTTP-обработчик выдачи подписки.
package grant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// Request — структура входных данных для выдачи подписки.
type Request struct {
	UserID       int64  `json:"user_id" validate:"required"`
	PlanID       int64  `json:"plan_id" validate:"required"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

// Service описывает интерфейс бизнес-логики выдачи подписки.
type Service interface {
	GrantSubscription(ctx context.Context, userID, planID int64, billingCycle string) (int64, error)
}

// Handler обрабатывает административные запросы выдачи подписки.
type Handler struct {
	log      *slog.Logger
	admin    Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, admin Service) *Handler {
	return &Handler{
		log:      log,
		admin:    admin,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выдача подписки пользователю
// @Description Создает активную подписку на указанный план. Доступно только администратору.
// @Tags Admin
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры подписки"
// @Success 200 {object} response.Response "Подписка создана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "План не найден"
// @Failure 409 {object} response.ErrorResponse "Подписка уже действует"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.grant"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	subID, err := h.admin.GrantSubscription(r.Context(), req.UserID, req.PlanID, req.BillingCycle)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrSubscriptionExists):
			log.Warn("grant rejected, subscription already active", sl.UserID(req.UserID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("user already has an active subscription"))
		case errors.Is(err, errs.ErrPlanNotFound):
			log.Warn("grant rejected, plan not found", slog.Int64("plan_id", req.PlanID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		default:
			log.Error("failed to grant subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("subscription granted", sl.UserID(req.UserID), slog.Int64("subscription_id", subID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_id": subID,
	}))
}
