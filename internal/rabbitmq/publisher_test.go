package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRabbitMQContainer(ctx context.Context, t *testing.T) (string, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForListeningPort("5672/tcp").
			WithStartupTimeout(2 * time.Minute),
	}

	rmqContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	cleanup := func() {
		if err := rmqContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}

	host, err := rmqContainer.Host(ctx)
	require.NoError(t, err)
	port, err := rmqContainer.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port()), cleanup
}

func TestPublishMessage_LifecycleRouting(t *testing.T) {
	ctx := context.Background()
	amqpURI, cleanup := setupRabbitMQContainer(ctx, t)
	defer cleanup()

	conn, err := Connect(amqpURI, 3, time.Second)
	require.NoError(t, err)
	defer func() {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close connection: %v", err)
		}
	}()

	ch, err := SetupChannel(conn, GetNotificationQueues())
	require.NoError(t, err)
	defer func() {
		if err := ch.Close(); err != nil {
			t.Errorf("failed to close channel: %v", err)
		}
	}()

	// Сообщение о переходе подписки в grace period должно попасть
	// в очередь notification.expired по ключу маршрутизации.
	msg := map[string]any{
		"user_id": 42,
		"type":    "subscription_expired",
	}
	err = PublishMessage(ch, "notifications", "subscription_expired", msg)
	require.NoError(t, err)

	deliveries, err := ch.Consume("notification.expired", "test-consumer", true, false, false, false, nil)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		var got map[string]any
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, "subscription_expired", got["type"])
		assert.Equal(t, "application/json", d.ContentType)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishMessage_MarshalError(t *testing.T) {
	ctx := context.Background()
	amqpURI, cleanup := setupRabbitMQContainer(ctx, t)
	defer cleanup()

	conn, err := Connect(amqpURI, 3, time.Second)
	require.NoError(t, err)
	defer func() {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close connection: %v", err)
		}
	}()

	ch, err := conn.Channel()
	require.NoError(t, err)

	// Канал не сериализуется в JSON.
	badMsg := struct {
		Ch chan int `json:"ch"`
	}{Ch: make(chan int)}

	err = PublishMessage(ch, "", "anywhere", badMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
}
