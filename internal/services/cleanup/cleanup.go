// Package services содержит фоновую уборку данных с истекшим сроком
// хранения: записей аудита попыток входа, истекших refresh-токенов и
// записей черного списка.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/lock"
	"github.com/qeematech/menu-backend/internal/lib/sl"
)

// lockName — имя распределенной блокировки уборки.
const lockName = "retention-cleanup"

// AttemptCleaner удаляет устаревшие записи аудита попыток входа.
type AttemptCleaner interface {
	// CleanupOldAttempts удаляет записи старше срока хранения.
	CleanupOldAttempts(ctx context.Context) (int64, error)
}

// TokenCleaner удаляет истекшие токены и записи черного списка.
type TokenCleaner interface {
	// CleanupExpired возвращает число удаленных токенов и записей
	// черного списка.
	CleanupExpired(ctx context.Context) (tokens, blacklisted int64, err error)
}

// CleanupService выполняет ежедневную уборку под распределенной
// блокировкой.
type CleanupService struct {
	attempts AttemptCleaner
	tokens   TokenCleaner
	locker   lock.Locker
	interval time.Duration
	lockTTL  time.Duration
	log      *slog.Logger
}

// NewCleanupService создает новый экземпляр CleanupService.
func NewCleanupService(attempts AttemptCleaner, tokens TokenCleaner, locker lock.Locker, interval, lockTTL time.Duration, log *slog.Logger) *CleanupService {
	return &CleanupService{
		attempts: attempts,
		tokens:   tokens,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		log:      log,
	}
}

// Run запускает уборку: один раз сразу и далее по тикеру до отмены
// контекста.
func (s *CleanupService) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл уборки. Ошибка одной категории не мешает
// остальным.
func (s *CleanupService) RunOnce(ctx context.Context) {
	acquired, err := s.locker.TryAcquire(ctx, lockName, s.lockTTL)
	if err != nil {
		s.log.Error("failed to acquire cleanup lock", sl.Err(err))
		return
	}
	if !acquired {
		s.log.Debug("cleanup lock held elsewhere, skipping run")
		return
	}

	s.log.Info("starting retention cleanup run")

	attempts, err := s.attempts.CleanupOldAttempts(ctx)
	if err != nil {
		s.log.Error("failed to cleanup login attempts", sl.Err(err))
	} else if attempts > 0 {
		s.log.Info("purged old login attempts", slog.Int64("deleted", attempts))
	}

	tokens, blacklisted, err := s.tokens.CleanupExpired(ctx)
	if err != nil {
		s.log.Error("failed to cleanup tokens", sl.Err(err))
		return
	}
	if tokens > 0 || blacklisted > 0 {
		s.log.Info("purged expired tokens",
			slog.Int64("refresh_tokens", tokens),
			slog.Int64("blacklist_entries", blacklisted))
	}
}
