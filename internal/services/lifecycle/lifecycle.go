// Package services содержит планировщик жизненного цикла подписок:
// три упорядоченных прохода (предупреждение об истечении, перевод в
// grace-период, перевод на бесплатный план) на часовом тикере с одним
// запуском на старте. Предикаты выборки взаимоисключающие, поэтому
// подписка за один проход участвует не более чем в одной фазе.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/lock"
	"github.com/qeematech/menu-backend/internal/lib/metrics"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
)

// Параметры жизненного цикла подписок.
const (
	// ExpiryWarningPeriod — за сколько до истечения отправляется
	// предупреждение.
	ExpiryWarningPeriod = 48 * time.Hour
	// GracePeriod — срок grace-периода после истечения подписки.
	GracePeriod = 48 * time.Hour
	// lockName — имя распределенной блокировки проходов.
	lockName = "subscription-lifecycle"
)

// SubscriptionRepository описывает выборки и переходы подписок,
// нужные планировщику.
type SubscriptionRepository interface {
	// FindSubscriptionsExpiringSoon возвращает активные подписки,
	// истекающие в пределах warning, без отправленного предупреждения.
	FindSubscriptionsExpiringSoon(ctx context.Context, warning time.Duration) ([]*models.ExpiringSubscription, error)
	// MarkExpiryNotificationSent помечает предупреждение отправленным.
	MarkExpiryNotificationSent(ctx context.Context, subscriptionID int64) error
	// FindNewlyExpiredSubscriptions возвращает активные подписки с
	// прошедшей датой окончания, еще не входившие в grace-период.
	FindNewlyExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error)
	// StartGracePeriod переводит подписку в grace-период.
	StartGracePeriod(ctx context.Context, subscriptionID int64, start, end time.Time) (int64, error)
	// FindGraceExpiredSubscriptions возвращает истекшие подписки с
	// прошедшим grace-периодом.
	FindGraceExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error)
}

// Downgrader переводит подписку с прошедшим grace-периодом на
// бесплатный план.
type Downgrader interface {
	// OnSubscriptionExpire выполняет перевод и применяет лимиты.
	OnSubscriptionExpire(ctx context.Context, sub *models.ExpiringSubscription) error
}

// Notifier создает уведомления о переходах.
type Notifier interface {
	// SubscriptionExpiring уведомляет о скором истечении.
	SubscriptionExpiring(ctx context.Context, sub *models.ExpiringSubscription) error
	// SubscriptionExpired уведомляет об истечении и grace-периоде.
	SubscriptionExpired(ctx context.Context, sub *models.ExpiringSubscription, graceEnd time.Time) error
}

// LifecycleService выполняет проходы жизненного цикла подписок.
type LifecycleService struct {
	subs       SubscriptionRepository
	downgrader Downgrader
	notifier   Notifier
	locker     lock.Locker
	interval   time.Duration
	lockTTL    time.Duration
	log        *slog.Logger
}

// NewLifecycleService создает новый экземпляр LifecycleService.
func NewLifecycleService(
	subs SubscriptionRepository,
	downgrader Downgrader,
	notifier Notifier,
	locker lock.Locker,
	interval, lockTTL time.Duration,
	log *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		subs:       subs,
		downgrader: downgrader,
		notifier:   notifier,
		locker:     locker,
		interval:   interval,
		lockTTL:    lockTTL,
		log:        log,
	}
}

// Run запускает проходы: один раз сразу и далее по тикеру до отмены
// контекста.
func (s *LifecycleService) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет три прохода под распределенной блокировкой.
// Ошибка одного прохода не мешает следующим: каждый проход сам
// логирует и продолжает.
func (s *LifecycleService) RunOnce(ctx context.Context) {
	acquired, err := s.locker.TryAcquire(ctx, lockName, s.lockTTL)
	if err != nil {
		s.log.Error("failed to acquire lifecycle lock", sl.Err(err))
		return
	}
	if !acquired {
		s.log.Debug("lifecycle lock held elsewhere, skipping run")
		return
	}

	s.log.Info("starting subscription lifecycle run")
	s.NotifyExpiringSoon(ctx)
	s.StartGracePeriods(ctx)
	s.DowngradeGraceExpired(ctx)
}

// NotifyExpiringSoon — первый проход: предупреждение об истечении.
// Флаг expiry_notification_sent выставляется в базе, поэтому подписка
// предупреждается ровно один раз.
func (s *LifecycleService) NotifyExpiringSoon(ctx context.Context) {
	subs, err := s.subs.FindSubscriptionsExpiringSoon(ctx, ExpiryWarningPeriod)
	if err != nil {
		s.log.Error("failed to find expiring subscriptions", sl.Err(err))
		return
	}
	if len(subs) == 0 {
		return
	}
	s.log.Info("found subscriptions expiring soon", slog.Int("count", len(subs)))

	for _, sub := range subs {
		if err := s.notifier.SubscriptionExpiring(ctx, sub); err != nil {
			s.log.Error("failed to notify expiring subscription",
				slog.Int64("subscription_id", sub.SubscriptionID), sl.Err(err))
			continue
		}
		// Флаг ставится после успешного уведомления: упавший посередине
		// проход повторит уведомление, но не потеряет его.
		if err := s.subs.MarkExpiryNotificationSent(ctx, sub.SubscriptionID); err != nil {
			s.log.Error("failed to mark expiry notification sent",
				slog.Int64("subscription_id", sub.SubscriptionID), sl.Err(err))
			continue
		}
		metrics.SubscriptionTransitions.WithLabelValues("expiring_soon").Inc()
	}
}

// StartGracePeriods — второй проход: перевод истекших подписок в
// grace-период. Переход защищен предикатом в хранилище, повторный
// проход над той же подпиской ничего не меняет.
func (s *LifecycleService) StartGracePeriods(ctx context.Context) {
	subs, err := s.subs.FindNewlyExpiredSubscriptions(ctx)
	if err != nil {
		s.log.Error("failed to find newly expired subscriptions", sl.Err(err))
		return
	}
	if len(subs) == 0 {
		return
	}
	s.log.Info("found newly expired subscriptions", slog.Int("count", len(subs)))

	now := time.Now().UTC()
	graceEnd := now.Add(GracePeriod)
	for _, sub := range subs {
		affected, err := s.subs.StartGracePeriod(ctx, sub.SubscriptionID, now, graceEnd)
		if err != nil {
			s.log.Error("failed to start grace period",
				slog.Int64("subscription_id", sub.SubscriptionID), sl.Err(err))
			continue
		}
		if affected == 0 {
			continue
		}
		metrics.SubscriptionTransitions.WithLabelValues("grace_started").Inc()
		if err := s.notifier.SubscriptionExpired(ctx, sub, graceEnd); err != nil {
			s.log.Error("failed to notify expired subscription",
				slog.Int64("subscription_id", sub.SubscriptionID), sl.Err(err))
		}
	}
}

// DowngradeGraceExpired — третий проход: перевод подписок с прошедшим
// grace-периодом на бесплатный план и применение его лимитов.
func (s *LifecycleService) DowngradeGraceExpired(ctx context.Context) {
	subs, err := s.subs.FindGraceExpiredSubscriptions(ctx)
	if err != nil {
		s.log.Error("failed to find grace expired subscriptions", sl.Err(err))
		return
	}
	if len(subs) == 0 {
		return
	}
	s.log.Info("found grace expired subscriptions", slog.Int("count", len(subs)))

	for _, sub := range subs {
		if err := s.downgrader.OnSubscriptionExpire(ctx, sub); err != nil {
			s.log.Error("failed to downgrade subscription",
				slog.Int64("subscription_id", sub.SubscriptionID),
				sl.UserID(sub.UserID), sl.Err(err))
		}
	}
}
