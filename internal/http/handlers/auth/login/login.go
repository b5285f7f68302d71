// Package login реализует HTTP-обработчик входа пользователя.
//
// Обработчик декодирует и валидирует тело запроса, делегирует вход
// сервису аутентификации и сопоставляет доменные ошибки со
// статус-кодами: неверные учетные данные — 401, заблокированный
// аккаунт — 423, приостановленный — 403.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/qeematech/menu-backend/internal/http/response"
	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	services "github.com/qeematech/menu-backend/internal/services/auth"
)

// Request — структура входных данных для входа.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Service описывает интерфейс бизнес-логики входа.
type Service interface {
	Login(ctx context.Context, email, rawPassword, ipAddress string, userAgent *string) (*services.LoginResult, error)
}

// Handler обрабатывает HTTP-запросы входа.
type Handler struct {
	log      *slog.Logger
	auth     Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, auth Service) *Handler {
	return &Handler{
		log:      log,
		auth:     auth,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход пользователя
// @Description Проверяет email и пароль, возвращает пару access/refresh токенов.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} response.Response "Успешный вход"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Аккаунт приостановлен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 423 {object} response.ErrorResponse "Аккаунт заблокирован"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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

	var userAgent *string
	if ua := r.UserAgent(); ua != "" {
		userAgent = &ua
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrAccountLocked):
			log.Warn("login rejected, account locked")
			var lockErr *errs.AccountLockedError
			if errors.As(err, &lockErr) && lockErr.RetryAfter > 0 {
				retryAfter := int(lockErr.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusLocked)
				render.JSON(w, r, response.Error(fmt.Sprintf(
					"account is temporarily locked, try again in %d minutes",
					int(math.Ceil(lockErr.RetryAfter.Minutes())))))
				return
			}
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error("account is temporarily locked, try again later"))
		case errors.Is(err, errs.ErrAccountSuspended):
			log.Warn("login rejected, account suspended")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("account is suspended"))
		case errors.Is(err, errs.ErrInvalidCredentials):
			log.Info("login failed, invalid credentials")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid credentials"))
		default:
			log.Error("login failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("login success", sl.UserID(result.User.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": map[string]any{
			"id":    result.User.ID,
			"email": result.User.Email,
			"name":  result.User.Name,
			"role":  result.User.Role,
		},
	}))
}
