// Package services содержит логику защиты от перебора паролей:
// учет попыток входа, блокировку аккаунтов и снятие блокировки.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/metrics"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
)

// Параметры защиты от перебора паролей.
const (
	// MaxFailedAttempts — число неудачных попыток в окне, после которого
	// аккаунт блокируется.
	MaxFailedAttempts = 5
	// AttemptWindow — скользящее окно подсчета неудачных попыток.
	AttemptWindow = 15 * time.Minute
	// LockDuration — срок блокировки аккаунта.
	LockDuration = 30 * time.Minute
	// AttemptRetention — срок хранения записей аудита попыток входа.
	AttemptRetention = 30 * 24 * time.Hour
)

// AttemptRepository описывает контракт хранилища записей попыток входа.
type AttemptRepository interface {
	// InsertLoginAttempt сохраняет запись аудита попытки входа.
	InsertLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error
	// CountRecentFailedAttempts считает неудачные попытки за окно window.
	CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error)
	// RecentFailedAttempts возвращает последние неудачные попытки.
	RecentFailedAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
	// DeleteLoginAttemptsBefore удаляет записи старше cutoff.
	DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserLockRepository описывает операции блокировки над строкой пользователя.
type UserLockRepository interface {
	// GetUserByEmail возвращает пользователя по email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// LockAccount блокирует аккаунт до lockedUntil.
	LockAccount(ctx context.Context, email string, lockedUntil time.Time, failedAttempts int) error
	// UnlockAccount снимает блокировку и обнуляет счетчики.
	UnlockAccount(ctx context.Context, email string) error
}

// GuardService реализует учет попыток входа и блокировку аккаунтов.
type GuardService struct {
	attempts AttemptRepository
	users    UserLockRepository
	failOpen bool
	log      *slog.Logger
}

// NewGuardService создает новый экземпляр GuardService. При failOpen = true
// отказ хранилища во время проверки блокировки пропускает вход.
func NewGuardService(attempts AttemptRepository, users UserLockRepository, failOpen bool, log *slog.Logger) *GuardService {
	return &GuardService{
		attempts: attempts,
		users:    users,
		failOpen: failOpen,
		log:      log,
	}
}

// RecordAttempt сохраняет запись аудита попытки входа. Ошибка хранилища
// логируется и не возвращается: учет попыток никогда не ломает сам вход.
func (s *GuardService) RecordAttempt(ctx context.Context, email, ipAddress string, userAgent *string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()

	err := s.attempts.InsertLoginAttempt(ctx, models.LoginAttempt{
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   success,
	})
	if err != nil {
		s.log.Error("failed to record login attempt", slog.String("email", email), sl.Err(err))
	}
}

// IsAccountLocked проверяет, заблокирован ли аккаунт. Истекшая блокировка
// снимается лениво прямо в этой проверке. Отказ хранилища при failOpen
// трактуется как "не заблокирован".
func (s *GuardService) IsAccountLocked(ctx context.Context, email string) (bool, *time.Time, error) {
	const op = "loginguard.IsAccountLocked"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if s.failOpen {
			s.log.Warn("lock check degraded to open", slog.String("email", email), sl.Err(err))
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsLocked {
		return false, nil, nil
	}
	if user.LockedUntil != nil && time.Now().UTC().After(*user.LockedUntil) {
		if err := s.users.UnlockAccount(ctx, email); err != nil {
			s.log.Error("failed to lazily unlock account", slog.String("email", email), sl.Err(err))
		}
		return false, nil, nil
	}
	return true, user.LockedUntil, nil
}

// CheckAndLockAccount вызывается после неудачной попытки входа: считает
// неудачные попытки в скользящем окне и блокирует аккаунт при достижении
// порога. Возвращает признак блокировки этим вызовом и число оставшихся
// до блокировки попыток.
// Гонка конкурирующих запросов допустима: оба могут насчитать порог и
// выставить блокировку, итоговое состояние эквивалентно.
func (s *GuardService) CheckAndLockAccount(ctx context.Context, email string) (bool, int, error) {
	const op = "loginguard.CheckAndLockAccount"

	count, err := s.attempts.CountRecentFailedAttempts(ctx, email, AttemptWindow)
	if err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}
	if count < MaxFailedAttempts {
		return false, MaxFailedAttempts - count, nil
	}

	lockedUntil := time.Now().UTC().Add(LockDuration)
	if err := s.users.LockAccount(ctx, email, lockedUntil, count); err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AccountLockouts.Inc()
	s.log.Warn("account locked after repeated failures",
		slog.String("email", email),
		slog.Int("failed_attempts", count),
		slog.Time("locked_until", lockedUntil))
	return true, 0, nil
}

// ResetFailedAttempts сбрасывает блокировку и счетчики после успешного
// входа. Идемпотентна: безопасна и для аккаунта без блокировки.
func (s *GuardService) ResetFailedAttempts(ctx context.Context, email string) error {
	const op = "loginguard.ResetFailedAttempts"
	if err := s.users.UnlockAccount(ctx, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecentFailedAttempts возвращает последние неудачные попытки входа.
// Используется административной поверхностью для мониторинга.
func (s *GuardService) RecentFailedAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	const op = "loginguard.RecentFailedAttempts"
	attempts, err := s.attempts.RecentFailedAttempts(ctx, email, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return attempts, nil
}

// CleanupOldAttempts удаляет записи аудита старше срока хранения.
func (s *GuardService) CleanupOldAttempts(ctx context.Context) (int64, error) {
	const op = "loginguard.CleanupOldAttempts"
	cutoff := time.Now().UTC().Add(-AttemptRetention)
	deleted, err := s.attempts.DeleteLoginAttemptsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}
