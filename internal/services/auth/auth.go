// Package services содержит оркестрацию входа в систему: проверку
// блокировки, проверку учетных данных, учет попыток и выпуск токенов.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/password"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
	token "github.com/qeematech/menu-backend/internal/services/token"
)

// UserRepository описывает контракт для чтения пользователей.
type UserRepository interface {
	// GetUserByEmail возвращает пользователя по email или
	// errs.ErrInvalidCredentials, если не найден.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Guard описывает защиту от перебора паролей.
type Guard interface {
	// RecordAttempt сохраняет запись аудита попытки входа.
	RecordAttempt(ctx context.Context, email, ipAddress string, userAgent *string, success bool)
	// IsAccountLocked проверяет блокировку аккаунта.
	IsAccountLocked(ctx context.Context, email string) (bool, *time.Time, error)
	// CheckAndLockAccount блокирует аккаунт при достижении порога и
	// возвращает число оставшихся до блокировки попыток.
	CheckAndLockAccount(ctx context.Context, email string) (bool, int, error)
	// ResetFailedAttempts сбрасывает счетчики после успешного входа.
	ResetFailedAttempts(ctx context.Context, email string) error
}

// TokenIssuer описывает операции над токенами, нужные для входа и выхода.
type TokenIssuer interface {
	// Issue выпускает пару access/refresh токенов.
	Issue(ctx context.Context, user *models.User) (*token.TokenPair, error)
	// Rotate ротирует refresh-токен и возвращает свежую пару.
	Rotate(ctx context.Context, oldToken string) (*token.TokenPair, error)
	// Revoke отзывает refresh-токен.
	Revoke(ctx context.Context, tokenStr string) error
	// RevokeAllForUser отзывает все refresh-токены пользователя.
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	// BlacklistAccessToken помещает access-токен в черный список.
	BlacklistAccessToken(ctx context.Context, tokenStr string, userID int64, reason string) error
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// AuthService оркестрирует вход, обновление токенов и выход.
type AuthService struct {
	users  UserRepository
	guard  Guard
	tokens TokenIssuer
	log    *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, guard Guard, tokens TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		guard:  guard,
		tokens: tokens,
		log:    log,
	}
}

// Login выполняет вход: проверка блокировки, проверка пары email/пароль,
// учет попытки, блокировка при переборе, сброс счетчиков и выпуск токенов.
//
// Порядок фиксирован: проверка блокировки предшествует проверке пароля,
// поэтому заблокированный аккаунт не дает оракула валидности пароля.
func (s *AuthService) Login(ctx context.Context, email, rawPassword, ipAddress string, userAgent *string) (*LoginResult, error) {
	const op = "auth.Login"

	locked, lockedUntil, err := s.guard.IsAccountLocked(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if locked {
		s.log.Warn("login rejected, account locked", slog.String("email", email), slog.Any("locked_until", lockedUntil))
		if lockedUntil != nil {
			return nil, fmt.Errorf("%s: %w", op, &errs.AccountLockedError{RetryAfter: time.Until(*lockedUntil)})
		}
		return nil, fmt.Errorf("%s: %w", op, errs.ErrAccountLocked)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) {
			s.onFailedAttempt(ctx, email, ipAddress, userAgent)
			return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Аккаунты, созданные через OAuth, не имеют пароля и через эту
	// форму входа не проходят.
	if user.PasswordHash == nil || password.CompareHash(*user.PasswordHash, rawPassword) != nil {
		s.onFailedAttempt(ctx, email, ipAddress, userAgent)
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
	}

	if user.IsSuspended {
		s.guard.RecordAttempt(ctx, email, ipAddress, userAgent, false)
		return nil, fmt.Errorf("%s: %w", op, errs.ErrAccountSuspended)
	}

	s.guard.RecordAttempt(ctx, email, ipAddress, userAgent, true)
	if err := s.guard.ResetFailedAttempts(ctx, email); err != nil {
		s.log.Error("failed to reset failed attempts", slog.String("email", email), sl.Err(err))
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user logged in", sl.UserID(user.ID))
	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) onFailedAttempt(ctx context.Context, email, ipAddress string, userAgent *string) {
	s.guard.RecordAttempt(ctx, email, ipAddress, userAgent, false)
	if _, _, err := s.guard.CheckAndLockAccount(ctx, email); err != nil {
		s.log.Error("failed to evaluate lockout", slog.String("email", email), sl.Err(err))
	}
}

// Refresh проверяет refresh-токен и возвращает свежую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	const op = "auth.Refresh"
	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Logout завершает сессию: access-токен попадает в черный список,
// refresh-токен отзывается. Повторный выход безопасен.
func (s *AuthService) Logout(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	const op = "auth.Logout"

	if err := s.tokens.BlacklistAccessToken(ctx, accessToken, userID, "logout"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	s.log.Info("user logged out", sl.UserID(userID))
	return nil
}

// LogoutAll завершает все сессии пользователя: текущий access-токен
// попадает в черный список, все refresh-токены отзываются.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64, accessToken string) (int64, error) {
	const op = "auth.LogoutAll"

	if err := s.tokens.BlacklistAccessToken(ctx, accessToken, userID, "logout_all"); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user logged out everywhere", sl.UserID(userID), slog.Int64("sessions_revoked", revoked))
	return revoked, nil
}
