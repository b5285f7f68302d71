// Package services содержит административные операции над подписками:
// выдачу платной подписки пользователю и массовое завершение просроченных
// подписок вне расписания планировщика.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/metrics"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
)

// Сроки действия подписки по циклам оплаты.
const (
	monthlyTerm = 30 * 24 * time.Hour
	yearlyTerm  = 365 * 24 * time.Hour
)

// PlanRepository возвращает тарифные планы.
type PlanRepository interface {
	// GetPlan возвращает тарифный план по ID или errs.ErrPlanNotFound.
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
}

// SubscriptionRepository описывает операции над подписками,
// нужные административному сервису.
type SubscriptionRepository interface {
	// GetActiveSubscription возвращает действующую подписку пользователя
	// или errs.ErrSubscriptionNotFound.
	GetActiveSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	// CreateSubscription сохраняет новую подписку и возвращает её ID.
	CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	// ExpireAllOverdueSubscriptions переводит просроченные активные
	// подписки в статус expired.
	ExpireAllOverdueSubscriptions(ctx context.Context) (int64, error)
}

// Notifier уведомляет пользователя о выдаче подписки.
type Notifier interface {
	// SubscriptionCreated создает уведомление об активации подписки.
	SubscriptionCreated(ctx context.Context, userID int64, planName string) error
}

// AdminService выполняет административные операции над подписками.
type AdminService struct {
	plans    PlanRepository
	subs     SubscriptionRepository
	notifier Notifier // может быть nil
	log      *slog.Logger
}

// NewAdminService создает новый экземпляр AdminService.
func NewAdminService(plans PlanRepository, subs SubscriptionRepository, notifier Notifier, log *slog.Logger) *AdminService {
	return &AdminService{
		plans:    plans,
		subs:     subs,
		notifier: notifier,
		log:      log,
	}
}

// GrantSubscription выдает пользователю подписку на план planID.
// Пользователь с действующей подпиской получает errs.ErrSubscriptionExists:
// параллельные подписки не поддерживаются, сначала должна истечь текущая.
func (s *AdminService) GrantSubscription(ctx context.Context, userID, planID int64, billingCycle string) (int64, error) {
	const op = "subscriptionadmin.GrantSubscription"

	var term time.Duration
	switch billingCycle {
	case models.BillingCycleMonthly:
		term = monthlyTerm
	case models.BillingCycleYearly:
		term = yearlyTerm
	default:
		return 0, fmt.Errorf("%s: unsupported billing cycle %q", op, billingCycle)
	}

	if _, err := s.subs.GetActiveSubscription(ctx, userID); err == nil {
		return 0, fmt.Errorf("%s: %w", op, errs.ErrSubscriptionExists)
	} else if !errors.Is(err, errs.ErrSubscriptionNotFound) {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	endDate := now.Add(term)
	id, err := s.subs.CreateSubscription(ctx, models.Subscription{
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: billingCycle,
		Status:       models.SubscriptionStatusActive,
		StartDate:    now,
		EndDate:      &endDate,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if s.notifier != nil {
		if err := s.notifier.SubscriptionCreated(ctx, userID, plan.Name); err != nil {
			s.log.Error("failed to notify about new subscription", sl.UserID(userID), sl.Err(err))
		}
	}
	s.log.Info("subscription granted",
		sl.UserID(userID), slog.Int64("plan_id", plan.ID), slog.Int64("subscription_id", id))
	return id, nil
}

// ExpireOverdue переводит все просроченные активные подписки в статус
// expired. Операция повторяемая: уже завершенные подписки не трогаются.
func (s *AdminService) ExpireOverdue(ctx context.Context) (int64, error) {
	const op = "subscriptionadmin.ExpireOverdue"

	affected, err := s.subs.ExpireAllOverdueSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if affected > 0 {
		metrics.SubscriptionTransitions.WithLabelValues("expired").Add(float64(affected))
		s.log.Info("overdue subscriptions expired", slog.Int64("count", affected))
	}
	return affected, nil
}
