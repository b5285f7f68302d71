package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/qeematech/menu-backend/internal/lib/lock"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
	services "github.com/qeematech/menu-backend/internal/services/lifecycle"
)

// Мок для SubscriptionRepository
type SubsRepoMock struct {
	mock.Mock
}

func (m *SubsRepoMock) FindSubscriptionsExpiringSoon(ctx context.Context, warning time.Duration) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx, warning)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

func (m *SubsRepoMock) MarkExpiryNotificationSent(ctx context.Context, subscriptionID int64) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *SubsRepoMock) FindNewlyExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

func (m *SubsRepoMock) StartGracePeriod(ctx context.Context, subscriptionID int64, start, end time.Time) (int64, error) {
	args := m.Called(ctx, subscriptionID, start, end)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SubsRepoMock) FindGraceExpiredSubscriptions(ctx context.Context) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

// Мок для Downgrader
type DowngraderMock struct {
	mock.Mock
}

func (m *DowngraderMock) OnSubscriptionExpire(ctx context.Context, sub *models.ExpiringSubscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SubscriptionExpiring(ctx context.Context, sub *models.ExpiringSubscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *NotifierMock) SubscriptionExpired(ctx context.Context, sub *models.ExpiringSubscription, graceEnd time.Time) error {
	args := m.Called(ctx, sub, graceEnd)
	return args.Error(0)
}

// Locker, который всегда отказывает.
type heldLocker struct{}

func (heldLocker) TryAcquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, nil
}

func newLifecycle(subs *SubsRepoMock, d *DowngraderMock, n *NotifierMock, locker lock.Locker) *services.LifecycleService {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return services.NewLifecycleService(subs, d, n, locker, time.Hour, 10*time.Minute, sl.DiscardLogger())
}

func expiringSub(id, userID int64) *models.ExpiringSubscription {
	end := time.Now().UTC().Add(24 * time.Hour)
	return &models.ExpiringSubscription{
		SubscriptionID: id, UserID: userID, PlanName: "Monthly", EndDate: &end,
	}
}

func TestLifecycleService_NotifyExpiringSoon(t *testing.T) {
	t.Run("notifies and marks each row", func(t *testing.T) {
		subs := new(SubsRepoMock)
		notifier := new(NotifierMock)
		rows := []*models.ExpiringSubscription{expiringSub(1, 10), expiringSub(2, 20)}
		subs.On("FindSubscriptionsExpiringSoon", mock.Anything, 48*time.Hour).Return(rows, nil).Once()
		for _, row := range rows {
			notifier.On("SubscriptionExpiring", mock.Anything, row).Return(nil).Once()
			subs.On("MarkExpiryNotificationSent", mock.Anything, row.SubscriptionID).Return(nil).Once()
		}

		svc := newLifecycle(subs, new(DowngraderMock), notifier, nil)
		svc.NotifyExpiringSoon(context.Background())
		subs.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("failed notification does not set the flag", func(t *testing.T) {
		subs := new(SubsRepoMock)
		notifier := new(NotifierMock)
		row := expiringSub(1, 10)
		subs.On("FindSubscriptionsExpiringSoon", mock.Anything, 48*time.Hour).
			Return([]*models.ExpiringSubscription{row}, nil).Once()
		notifier.On("SubscriptionExpiring", mock.Anything, row).
			Return(errors.New("db down")).Once()

		svc := newLifecycle(subs, new(DowngraderMock), notifier, nil)
		svc.NotifyExpiringSoon(context.Background())
		subs.AssertNotCalled(t, "MarkExpiryNotificationSent", mock.Anything, mock.Anything)
	})

	t.Run("selection error is swallowed", func(t *testing.T) {
		subs := new(SubsRepoMock)
		subs.On("FindSubscriptionsExpiringSoon", mock.Anything, 48*time.Hour).
			Return(nil, errors.New("db down")).Once()

		svc := newLifecycle(subs, new(DowngraderMock), new(NotifierMock), nil)
		svc.NotifyExpiringSoon(context.Background())
	})
}

func TestLifecycleService_StartGracePeriods(t *testing.T) {
	t.Run("starts grace and notifies", func(t *testing.T) {
		subs := new(SubsRepoMock)
		notifier := new(NotifierMock)
		row := expiringSub(5, 50)
		subs.On("FindNewlyExpiredSubscriptions", mock.Anything).
			Return([]*models.ExpiringSubscription{row}, nil).Once()
		subs.On("StartGracePeriod", mock.Anything, int64(5),
			mock.MatchedBy(func(start time.Time) bool {
				return time.Since(start) < time.Minute
			}),
			mock.MatchedBy(func(end time.Time) bool {
				d := time.Until(end)
				return d > 47*time.Hour && d <= 48*time.Hour
			})).Return(int64(1), nil).Once()
		notifier.On("SubscriptionExpired", mock.Anything, row, mock.Anything).Return(nil).Once()

		svc := newLifecycle(subs, new(DowngraderMock), notifier, nil)
		svc.StartGracePeriods(context.Background())
		subs.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("row already in grace is not re-notified", func(t *testing.T) {
		subs := new(SubsRepoMock)
		notifier := new(NotifierMock)
		row := expiringSub(5, 50)
		subs.On("FindNewlyExpiredSubscriptions", mock.Anything).
			Return([]*models.ExpiringSubscription{row}, nil).Once()
		// Конкурирующий экземпляр успел первым: guard-предикат вернул 0 строк.
		subs.On("StartGracePeriod", mock.Anything, int64(5), mock.Anything, mock.Anything).
			Return(int64(0), nil).Once()

		svc := newLifecycle(subs, new(DowngraderMock), notifier, nil)
		svc.StartGracePeriods(context.Background())
		notifier.AssertNotCalled(t, "SubscriptionExpired", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLifecycleService_DowngradeGraceExpired(t *testing.T) {
	subs := new(SubsRepoMock)
	downgrader := new(DowngraderMock)
	first := expiringSub(7, 70)
	second := expiringSub(8, 80)
	subs.On("FindGraceExpiredSubscriptions", mock.Anything).
		Return([]*models.ExpiringSubscription{first, second}, nil).Once()
	// Ошибка на первой строке не мешает обработать вторую.
	downgrader.On("OnSubscriptionExpire", mock.Anything, first).
		Return(errors.New("db down")).Once()
	downgrader.On("OnSubscriptionExpire", mock.Anything, second).Return(nil).Once()

	svc := newLifecycle(subs, downgrader, new(NotifierMock), nil)
	svc.DowngradeGraceExpired(context.Background())
	downgrader.AssertExpectations(t)
}

func TestLifecycleService_RunOnce(t *testing.T) {
	t.Run("executes all three passes in order", func(t *testing.T) {
		subs := new(SubsRepoMock)
		var order []string
		subs.On("FindSubscriptionsExpiringSoon", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { order = append(order, "warn") }).
			Return([]*models.ExpiringSubscription{}, nil).Once()
		subs.On("FindNewlyExpiredSubscriptions", mock.Anything).
			Run(func(mock.Arguments) { order = append(order, "grace") }).
			Return([]*models.ExpiringSubscription{}, nil).Once()
		subs.On("FindGraceExpiredSubscriptions", mock.Anything).
			Run(func(mock.Arguments) { order = append(order, "downgrade") }).
			Return([]*models.ExpiringSubscription{}, nil).Once()

		svc := newLifecycle(subs, new(DowngraderMock), new(NotifierMock), nil)
		svc.RunOnce(context.Background())
		assert.Equal(t, []string{"warn", "grace", "downgrade"}, order)
	})

	t.Run("lock held elsewhere skips the run", func(t *testing.T) {
		subs := new(SubsRepoMock)
		svc := newLifecycle(subs, new(DowngraderMock), new(NotifierMock), heldLocker{})
		svc.RunOnce(context.Background())
		subs.AssertNotCalled(t, "FindSubscriptionsExpiringSoon", mock.Anything, mock.Anything)
	})
}
