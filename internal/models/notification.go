package models

import "time"

// Типы уведомлений, создаваемых переходами жизненного цикла подписки.
const (
	NotificationSubscriptionCreated  = "subscription_created"
	NotificationSubscriptionExpiring = "subscription_expiring"
	NotificationSubscriptionExpired  = "subscription_expired"
	NotificationDowngradedToFree     = "downgraded_to_free"
)

// Notification представляет двуязычное уведомление пользователя.
// Создается исключительно переходами жизненного цикла; чтение и удаление
// выполняет пользовательский API уведомлений.
type Notification struct {
	ID        int64
	UserID    int64
	Type      string
	Title     string // Заголовок на английском
	TitleAr   string // Заголовок на арабском
	Message   string
	MessageAr string
	IsRead    bool
	Metadata  map[string]any // Произвольные данные перехода
	CreatedAt time.Time
	ReadAt    *time.Time
}
