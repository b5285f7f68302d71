// Package services содержит движок принудительного приведения ресурсов
// пользователя к лимитам бесплатного плана после окончания платной
// подписки. Все операции идемпотентны: повторный запуск над уже
// приведенным аккаунтом ничего не меняет.
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

// planCacheTTL — срок жизни строки бесплатного плана в кеше.
// Планами управляет администратор, меняются они редко.
const planCacheTTL = time.Hour

// PlanRepository возвращает тарифные планы.
type PlanRepository interface {
	// GetFreePlan возвращает бесплатный план (price_monthly = 0).
	GetFreePlan(ctx context.Context) (*models.Plan, error)
}

// SubscriptionRepository описывает операции над подписками,
// нужные движку приведения.
type SubscriptionRepository interface {
	// HasActivePaidSubscription сообщает о наличии активной платной подписки.
	HasActivePaidSubscription(ctx context.Context, userID int64) (bool, error)
	// HasExpiredPaidSubscription сообщает о наличии истекшей платной подписки.
	HasExpiredPaidSubscription(ctx context.Context, userID int64) (bool, error)
	// DowngradeSubscriptionToFree перенацеливает подписку на бесплатный план.
	DowngradeSubscriptionToFree(ctx context.Context, subscriptionID, freePlanID int64) (int64, error)
}

// ContentRepository описывает операции над контентом пользователя.
type ContentRepository interface {
	// MenusByUser возвращает меню пользователя от старых к новым.
	MenusByUser(ctx context.Context, userID int64) ([]*models.Menu, error)
	// DeactivateMenu деактивирует меню, не удаляя его.
	DeactivateMenu(ctx context.Context, menuID int64) error
	// MenuItemsByMenu возвращает позиции меню от старых к новым.
	MenuItemsByMenu(ctx context.Context, menuID int64) ([]*models.MenuItem, error)
	// DeleteMenuItem удаляет позицию меню.
	DeleteMenuItem(ctx context.Context, itemID int64) error
	// DeleteAdsForUser удаляет рекламные блоки пользователя.
	DeleteAdsForUser(ctx context.Context, userID int64) (int64, error)
	// DeleteBranchesForUser удаляет филиалы пользователя.
	DeleteBranchesForUser(ctx context.Context, userID int64) (int64, error)
}

// Cache описывает методы кеширования строки плана.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
}

// Notifier уведомляет пользователя о переводе на бесплатный план.
type Notifier interface {
	// DowngradedToFree создает уведомление о переводе на бесплатный план.
	DowngradedToFree(ctx context.Context, userID int64, previousPlan string) error
}

// DowngradeService приводит контент пользователя к лимитам бесплатного плана.
type DowngradeService struct {
	plans    PlanRepository
	subs     SubscriptionRepository
	content  ContentRepository
	cache    Cache
	notifier Notifier
	log      *slog.Logger
}

// NewDowngradeService создает новый экземпляр DowngradeService.
// cache и notifier могут быть nil.
func NewDowngradeService(
	plans PlanRepository,
	subs SubscriptionRepository,
	content ContentRepository,
	cache Cache,
	notifier Notifier,
	log *slog.Logger,
) *DowngradeService {
	return &DowngradeService{
		plans:    plans,
		subs:     subs,
		content:  content,
		cache:    cache,
		notifier: notifier,
		log:      log,
	}
}

// freePlan возвращает бесплатный план, используя кеш.
func (s *DowngradeService) freePlan(ctx context.Context) (*models.Plan, error) {
	const cacheKey = "plan:free"

	if s.cache != nil {
		var cached models.Plan
		found, err := s.cache.Get(cacheKey, &cached)
		if err != nil {
			s.log.Warn("failed to read plan cache", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	plan, err := s.plans.GetFreePlan(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(cacheKey, plan, planCacheTTL); err != nil {
			s.log.Warn("failed to cache free plan", sl.Err(err))
		}
	}
	return plan, nil
}

// HandleDowngradeToFree приводит контент пользователя к лимитам
// бесплатного плана: первые max_menus меню по порядку создания остаются,
// остальные деактивируются. Лимит позиций применяется к каждому меню,
// включая деактивированные, с сохранением самых старых позиций.
// Собственные рекламные блоки на бесплатном плане не поддерживаются и
// удаляются всегда; филиалы удаляются, если план их не разрешает.
func (s *DowngradeService) HandleDowngradeToFree(ctx context.Context, userID int64) error {
	const op = "downgrade.HandleDowngradeToFree"

	plan, err := s.freePlan(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	menus, err := s.content.MenusByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for i, menu := range menus {
		if plan.MaxMenus >= 0 && i >= plan.MaxMenus && menu.IsActive {
			if err := s.content.DeactivateMenu(ctx, menu.ID); err != nil {
				s.log.Error("failed to deactivate menu",
					sl.UserID(userID), slog.Int64("menu_id", menu.ID), sl.Err(err))
			}
		}
		if err := s.enforceItemLimit(ctx, menu.ID, plan.MaxProductsPerMenu); err != nil {
			s.log.Error("failed to enforce item limit",
				sl.UserID(userID), slog.Int64("menu_id", menu.ID), sl.Err(err))
		}
	}

	if _, err := s.content.DeleteAdsForUser(ctx, userID); err != nil {
		s.log.Error("failed to delete ads", sl.UserID(userID), sl.Err(err))
	}
	if !plan.AllowBranches {
		if _, err := s.content.DeleteBranchesForUser(ctx, userID); err != nil {
			s.log.Error("failed to delete branches", sl.UserID(userID), sl.Err(err))
		}
	}

	metrics.DowngradeEnforcements.Inc()
	s.log.Info("free plan limits enforced", sl.UserID(userID), slog.Int("menu_count", len(menus)))
	return nil
}

// enforceItemLimit удаляет позиции меню сверх лимита, сохраняя самые старые.
// Лимит -1 означает отсутствие ограничения.
func (s *DowngradeService) enforceItemLimit(ctx context.Context, menuID int64, limit int) error {
	if limit < 0 {
		return nil
	}
	items, err := s.content.MenuItemsByMenu(ctx, menuID)
	if err != nil {
		return err
	}
	if len(items) <= limit {
		return nil
	}
	for _, item := range items[limit:] {
		if err := s.content.DeleteMenuItem(ctx, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// OnSubscriptionExpire переводит истекшую подписку на бесплатный план и
// применяет лимиты. Перевод защищен предикатом в хранилище: если подписка
// уже переведена, вызов ничего не меняет.
func (s *DowngradeService) OnSubscriptionExpire(ctx context.Context, sub *models.ExpiringSubscription) error {
	const op = "downgrade.OnSubscriptionExpire"

	plan, err := s.freePlan(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := s.subs.DowngradeSubscriptionToFree(ctx, sub.SubscriptionID, plan.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		// Подписку уже перевел конкурирующий проход.
		return nil
	}

	if err := s.HandleDowngradeToFree(ctx, sub.UserID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	metrics.SubscriptionTransitions.WithLabelValues("downgraded").Inc()
	if s.notifier != nil {
		if err := s.notifier.DowngradedToFree(ctx, sub.UserID, sub.PlanName); err != nil {
			s.log.Error("failed to notify about downgrade", sl.UserID(sub.UserID), sl.Err(err))
		}
	}
	return nil
}

// CheckAndApplyDowngrade — защитная самопроверка на пути запроса:
// пользователь без активной платной подписки, но с истекшей платной
// в прошлом, получает лимиты бесплатного плана повторно. Закрывает
// случаи, когда планировщик не успел или упал на полпути.
func (s *DowngradeService) CheckAndApplyDowngrade(ctx context.Context, userID int64) error {
	const op = "downgrade.CheckAndApplyDowngrade"

	hasActive, err := s.subs.HasActivePaidSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if hasActive {
		return nil
	}

	hadPaid, err := s.subs.HasExpiredPaidSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !hadPaid {
		return nil
	}

	if err := s.HandleDowngradeToFree(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
