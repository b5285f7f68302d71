package rabbitmq

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди переходов жизненного цикла
// подписки, потребляемые почтовым воркером.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.expiring", RoutingKey: "subscription_expiring"},
		{QueueName: "notification.expired", RoutingKey: "subscription_expired"},
		{QueueName: "notification.downgraded", RoutingKey: "downgraded_to_free"},
	}
}
