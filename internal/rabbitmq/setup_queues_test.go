package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNotificationQueues(t *testing.T) {
	queues := GetNotificationQueues()

	require.NotEmpty(t, queues, "queues list should not be empty")

	wantKeys := map[string]string{
		"notification.expiring":   "subscription_expiring",
		"notification.expired":    "subscription_expired",
		"notification.downgraded": "downgraded_to_free",
	}
	assert.Len(t, queues, len(wantKeys))

	seen := map[string]bool{}
	for _, q := range queues {
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true

		key, ok := wantKeys[q.QueueName]
		require.Truef(t, ok, "unexpected queue: %s", q.QueueName)
		assert.Equal(t, key, q.RoutingKey)
	}
}
