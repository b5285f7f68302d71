package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
	services "github.com/qeematech/menu-backend/internal/services/notify"
)

// Мок для NotificationRepository
type NotificationRepoMock struct {
	mock.Mock
}

func (m *NotificationRepoMock) InsertNotification(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// Мок для Publisher
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func TestNotifyService_SubscriptionExpired_PersistsAndPublishes(t *testing.T) {
	repo := new(NotificationRepoMock)
	pub := new(PublisherMock)

	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	graceEnd := end.Add(48 * time.Hour)

	repo.On("InsertNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.UserID == 4 &&
			n.Type == models.NotificationSubscriptionExpired &&
			n.Title != "" && n.TitleAr != "" &&
			n.Message != "" && n.MessageAr != "" &&
			n.Metadata["grace_period_end"] == "2026-03-03"
	})).Return(nil).Once()
	pub.On("Publish", models.NotificationSubscriptionExpired, mock.Anything).Return(nil).Once()

	svc := services.NewNotifyService(repo, pub, sl.DiscardLogger())
	err := svc.SubscriptionExpired(context.Background(), &models.ExpiringSubscription{
		SubscriptionID: 17, UserID: 4, PlanName: "Monthly", EndDate: &end,
	}, graceEnd)
	require.NoError(t, err)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestNotifyService_PublishFailureIsBestEffort(t *testing.T) {
	repo := new(NotificationRepoMock)
	pub := new(PublisherMock)
	repo.On("InsertNotification", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("Publish", models.NotificationDowngradedToFree, mock.Anything).
		Return(errors.New("broker down")).Once()

	svc := services.NewNotifyService(repo, pub, sl.DiscardLogger())
	// Недоступный брокер не должен превращаться в ошибку перехода.
	err := svc.DowngradedToFree(context.Background(), 4, "Yearly")
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestNotifyService_InsertFailurePropagates(t *testing.T) {
	repo := new(NotificationRepoMock)
	repo.On("InsertNotification", mock.Anything, mock.Anything).
		Return(errors.New("db down")).Once()

	svc := services.NewNotifyService(repo, nil, sl.DiscardLogger())
	err := svc.SubscriptionCreated(context.Background(), 4, "Monthly")
	require.Error(t, err)
}

func TestNotifyService_NilPublisherSkipsFanout(t *testing.T) {
	repo := new(NotificationRepoMock)
	repo.On("InsertNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Type == models.NotificationSubscriptionExpiring
	})).Return(nil).Once()

	end := time.Now().UTC().Add(24 * time.Hour)
	svc := services.NewNotifyService(repo, nil, sl.DiscardLogger())
	err := svc.SubscriptionExpiring(context.Background(), &models.ExpiringSubscription{
		SubscriptionID: 1, UserID: 2, PlanName: "Monthly", EndDate: &end,
	})
	require.NoError(t, err)
	assert.True(t, repo.AssertExpectations(t))
}
