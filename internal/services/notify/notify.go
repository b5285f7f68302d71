// Package services содержит создание уведомлений о переходах жизненного
// цикла подписки. Уведомление сначала сохраняется в базе, затем
// публикуется в брокер для почтового воркера. Публикация выполняется
// по принципу best-effort: недоступный брокер не ломает переход.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
	"github.com/qeematech/menu-backend/internal/rabbitmq"
)

// NotificationRepository описывает контракт хранилища уведомлений.
type NotificationRepository interface {
	// InsertNotification сохраняет уведомление.
	InsertNotification(ctx context.Context, n models.Notification) error
}

// Publisher публикует событие перехода в брокер.
type Publisher interface {
	// Publish отправляет сообщение с ключом маршрутизации routingKey.
	Publish(routingKey string, message any) error
}

// AmqpPublisher реализует Publisher поверх канала RabbitMQ.
type AmqpPublisher struct {
	ch *amqp.Channel
}

// NewAmqpPublisher создает AmqpPublisher для обменника notifications.
func NewAmqpPublisher(ch *amqp.Channel) *AmqpPublisher {
	return &AmqpPublisher{ch: ch}
}

// Publish отправляет сообщение в обменник notifications.
func (p *AmqpPublisher) Publish(routingKey string, message any) error {
	return rabbitmq.PublishMessage(p.ch, "notifications", routingKey, message)
}

// NotifyService создает уведомления пользователей о переходах подписки.
type NotifyService struct {
	repo      NotificationRepository
	publisher Publisher // nil, если брокер не сконфигурирован
	log       *slog.Logger
}

// NewNotifyService создает новый экземпляр NotifyService.
func NewNotifyService(repo NotificationRepository, publisher Publisher, log *slog.Logger) *NotifyService {
	return &NotifyService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// SubscriptionCreated уведомляет о создании подписки на план planName.
func (s *NotifyService) SubscriptionCreated(ctx context.Context, userID int64, planName string) error {
	const op = "notify.SubscriptionCreated"
	n := models.Notification{
		UserID:    userID,
		Type:      models.NotificationSubscriptionCreated,
		Title:     "Subscription activated",
		TitleAr:   "تم تفعيل الاشتراك",
		Message:   fmt.Sprintf("Your %s subscription is now active.", planName),
		MessageAr: fmt.Sprintf("اشتراكك في خطة %s أصبح فعالاً الآن.", planName),
		Metadata:  map[string]any{"plan_name": planName},
	}
	return s.deliver(ctx, op, n)
}

// SubscriptionExpiring уведомляет о скором истечении подписки.
func (s *NotifyService) SubscriptionExpiring(ctx context.Context, sub *models.ExpiringSubscription) error {
	const op = "notify.SubscriptionExpiring"
	var endDate string
	if sub.EndDate != nil {
		endDate = sub.EndDate.Format("2006-01-02")
	}
	n := models.Notification{
		UserID:    sub.UserID,
		Type:      models.NotificationSubscriptionExpiring,
		Title:     "Your subscription expires soon",
		TitleAr:   "اشتراكك سينتهي قريباً",
		Message:   fmt.Sprintf("Your %s subscription expires on %s. Renew to keep your menus online.", sub.PlanName, endDate),
		MessageAr: fmt.Sprintf("اشتراكك في خطة %s سينتهي بتاريخ %s. جدّد اشتراكك للحفاظ على قوائمك.", sub.PlanName, endDate),
		Metadata: map[string]any{
			"subscription_id": sub.SubscriptionID,
			"plan_name":       sub.PlanName,
			"end_date":        endDate,
		},
	}
	return s.deliver(ctx, op, n)
}

// SubscriptionExpired уведомляет об истечении подписки и начале
// grace-периода до graceEnd.
func (s *NotifyService) SubscriptionExpired(ctx context.Context, sub *models.ExpiringSubscription, graceEnd time.Time) error {
	const op = "notify.SubscriptionExpired"
	grace := graceEnd.Format("2006-01-02")
	n := models.Notification{
		UserID:    sub.UserID,
		Type:      models.NotificationSubscriptionExpired,
		Title:     "Your subscription has expired",
		TitleAr:   "انتهى اشتراكك",
		Message:   fmt.Sprintf("Your %s subscription has expired. Renew before %s or your account will move to the Free plan.", sub.PlanName, grace),
		MessageAr: fmt.Sprintf("انتهى اشتراكك في خطة %s. جدّد قبل %s وإلا سيتم نقل حسابك إلى الخطة المجانية.", sub.PlanName, grace),
		Metadata: map[string]any{
			"subscription_id":  sub.SubscriptionID,
			"plan_name":        sub.PlanName,
			"grace_period_end": grace,
		},
	}
	return s.deliver(ctx, op, n)
}

// DowngradedToFree уведомляет о переводе аккаунта на бесплатный план.
func (s *NotifyService) DowngradedToFree(ctx context.Context, userID int64, previousPlan string) error {
	const op = "notify.DowngradedToFree"
	n := models.Notification{
		UserID:    userID,
		Type:      models.NotificationDowngradedToFree,
		Title:     "Account moved to the Free plan",
		TitleAr:   "تم نقل حسابك إلى الخطة المجانية",
		Message:   fmt.Sprintf("Your %s subscription ended and your account was moved to the Free plan. Content beyond the Free plan limits was deactivated.", previousPlan),
		MessageAr: fmt.Sprintf("انتهى اشتراكك في خطة %s وتم نقل حسابك إلى الخطة المجانية. تم إيقاف المحتوى الذي يتجاوز حدود الخطة المجانية.", previousPlan),
		Metadata:  map[string]any{"previous_plan": previousPlan},
	}
	return s.deliver(ctx, op, n)
}

func (s *NotifyService) deliver(ctx context.Context, op string, n models.Notification) error {
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"user_id":  n.UserID,
		"type":     n.Type,
		"title":    n.Title,
		"message":  n.Message,
		"metadata": n.Metadata,
	}
	if err := s.publisher.Publish(n.Type, payload); err != nil {
		s.log.Warn("failed to publish notification", slog.String("type", n.Type), sl.UserID(n.UserID), sl.Err(err))
	}
	return nil
}
