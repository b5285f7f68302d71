package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/models"
)

// CreateSubscription сохраняет новую подписку и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int64
	query := `INSERT INTO subscriptions (user_id, plan_id, billing_cycle, status, start_date, end_date)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query,
		sub.UserID, sub.PlanID, sub.BillingCycle, sub.Status, sub.StartDate, sub.EndDate).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetActiveSubscription возвращает действующую подписку пользователя:
// статус active и end_date в будущем либо отсутствует.
func (s *Storage) GetActiveSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, plan_id, billing_cycle, status, start_date, end_date,
			      grace_period_start_date, grace_period_end_date, expiry_notification_sent, created_at
			  FROM subscriptions
			  WHERE user_id = $1
			    AND status = 'active'
			    AND (end_date IS NULL OR end_date > NOW())
			  LIMIT 1`
	sub := &models.Subscription{}
	row := s.DB.QueryRowContext(ctx, query, userID)

	var endDate, graceStart, graceEnd sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.BillingCycle, &sub.Status,
		&sub.StartDate, &endDate, &graceStart, &graceEnd,
		&sub.ExpiryNotificationSent, &sub.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if endDate.Valid {
		sub.EndDate = &endDate.Time
	}
	if graceStart.Valid {
		sub.GracePeriodStartDate = &graceStart.Time
	}
	if graceEnd.Valid {
		sub.GracePeriodEndDate = &graceEnd.Time
	}
	return sub, nil
}

// HasActivePaidSubscription сообщает, есть ли у пользователя действующая
// платная подписка.
func (s *Storage) HasActivePaidSubscription(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.HasActivePaidSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1
			      FROM subscriptions s
			      JOIN plans p ON s.plan_id = p.id
			      WHERE s.user_id = $1
			        AND s.status = 'active'
			        AND (s.end_date IS NULL OR s.end_date > NOW())
			        AND p.price_monthly > 0
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// HasExpiredPaidSubscription сообщает, была ли у пользователя платная
// подписка, которая уже истекла.
func (s *Storage) HasExpiredPaidSubscription(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.HasExpiredPaidSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1
			      FROM subscriptions s
			      JOIN plans p ON s.plan_id = p.id
			      WHERE s.user_id = $1
			        AND s.status = 'expired'
			        AND p.price_monthly > 0
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// FindSubscriptionsExpiringSoon возвращает активные платные подписки,
// у которых end_date наступает в пределах окна warning и уведомление
// об истечении еще не отправлялось.
func (s *Storage) FindSubscriptionsExpiringSoon(ctx context.Context, warning time.Duration) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindSubscriptionsExpiringSoon"

	query := `SELECT s.id, s.user_id, u.email, u.name, p.name, s.end_date, s.grace_period_end_date
			  FROM subscriptions s
			  JOIN users u ON s.user_id = u.id
			  JOIN plans p ON s.plan_id = p.id
			  WHERE s.status = 'active'
			    AND s.expiry_notification_sent = FALSE
			    AND s.end_date IS NOT NULL
			    AND s.end_date > NOW()
			    AND s.end_date <= NOW() + $1::INTERVAL
			    AND p.price_monthly > 0`
	interval := fmt.Sprintf("%d seconds", int(warning.Seconds()))
	return s.queryExpiring(ctx, op, query, interval)
}

// FindNewlyExpiredSubscriptions возвращает активные платные подписки
// с прошедшим end_date, еще не входившие в grace-период
// (grace_period_start_date IS NULL — фазовый маркер перехода).
func (s *Storage) FindNewlyExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindNewlyExpiredSubscriptions"

	query := `SELECT s.id, s.user_id, u.email, u.name, p.name, s.end_date, s.grace_period_end_date
			  FROM subscriptions s
			  JOIN users u ON s.user_id = u.id
			  JOIN plans p ON s.plan_id = p.id
			  WHERE s.status = 'active'
			    AND s.end_date IS NOT NULL
			    AND s.end_date < NOW()
			    AND s.grace_period_start_date IS NULL
			    AND p.price_monthly > 0`
	return s.queryExpiring(ctx, op, query)
}

// FindGraceExpiredSubscriptions возвращает платные подписки в статусе
// expired с прошедшим концом grace-периода.
func (s *Storage) FindGraceExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindGraceExpiredSubscriptions"

	query := `SELECT s.id, s.user_id, u.email, u.name, p.name, s.end_date, s.grace_period_end_date
			  FROM subscriptions s
			  JOIN users u ON s.user_id = u.id
			  JOIN plans p ON s.plan_id = p.id
			  WHERE s.status = 'expired'
			    AND s.grace_period_end_date IS NOT NULL
			    AND s.grace_period_end_date < NOW()
			    AND p.price_monthly > 0`
	return s.queryExpiring(ctx, op, query)
}

func (s *Storage) queryExpiring(ctx context.Context, op, query string, args ...any) ([]*models.ExpiringSubscription, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringSubscription
	for rows.Next() {
		var e models.ExpiringSubscription
		var endDate, graceEnd sql.NullTime
		if err = rows.Scan(&e.SubscriptionID, &e.UserID, &e.Email, &e.UserName,
			&e.PlanName, &endDate, &graceEnd); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if endDate.Valid {
			e.EndDate = &endDate.Time
		}
		if graceEnd.Valid {
			e.GracePeriodEndDate = &graceEnd.Time
		}
		result = append(result, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkExpiryNotificationSent помечает подписку как уведомленную об истечении.
func (s *Storage) MarkExpiryNotificationSent(ctx context.Context, subscriptionID int64) error {
	const op = "storage.MarkExpiryNotificationSent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET expiry_notification_sent = TRUE
			  WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, subscriptionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// StartGracePeriod переводит подписку в grace-период. Охранное условие
// grace_period_start_date IS NULL делает переход однократным: повторный
// запуск прохода не затрагивает уже обработанную строку.
func (s *Storage) StartGracePeriod(ctx context.Context, subscriptionID int64, start, end time.Time) (int64, error) {
	const op = "storage.StartGracePeriod"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET grace_period_start_date = $1,
			      grace_period_end_date = $2,
			      status = 'expired'
			  WHERE id = $3
			    AND status = 'active'
			    AND grace_period_start_date IS NULL`
	result, err := s.DB.ExecContext(ctx, query, start, end, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// DowngradeSubscriptionToFree перенаправляет подписку на бесплатный план:
// статус возвращается в active, дата окончания и поля grace-периода
// очищаются, флаги уведомлений сбрасываются.
func (s *Storage) DowngradeSubscriptionToFree(ctx context.Context, subscriptionID, freePlanID int64) (int64, error) {
	const op = "storage.DowngradeSubscriptionToFree"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET plan_id = $1,
			      billing_cycle = 'free',
			      status = 'active',
			      start_date = NOW(),
			      end_date = NULL,
			      grace_period_start_date = NULL,
			      grace_period_end_date = NULL,
			      expiry_notification_sent = FALSE
			  WHERE id = $2
			    AND status = 'expired'`
	result, err := s.DB.ExecContext(ctx, query, freePlanID, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// ExpireOverdueSubscriptionsForUser переводит просроченные активные подписки
// одного пользователя в статус expired. Используется легковесной проверкой
// на пути запроса, чтобы не ждать ближайшего запуска планировщика.
func (s *Storage) ExpireOverdueSubscriptionsForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.ExpireOverdueSubscriptionsForUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'expired'
			  WHERE user_id = $1
			    AND status = 'active'
			    AND end_date IS NOT NULL
			    AND end_date <= NOW()`
	result, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// ExpireAllOverdueSubscriptions переводит все просроченные активные подписки
// в статус expired и возвращает их число. Используется операционным сценарием
// массового завершения.
func (s *Storage) ExpireAllOverdueSubscriptions(ctx context.Context) (int64, error) {
	const op = "storage.ExpireAllOverdueSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'expired'
			  WHERE status = 'active'
			    AND end_date IS NOT NULL
			    AND end_date <= NOW()`
	result, err := s.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}
