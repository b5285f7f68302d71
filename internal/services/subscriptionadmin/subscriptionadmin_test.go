package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
	services "github.com/qeematech/menu-backend/internal/services/subscriptionadmin"
)

// Мок для PlanRepository
type PlanRepoMock struct {
	mock.Mock
}

func (m *PlanRepoMock) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

// Мок для SubscriptionRepository
type SubscriptionRepoMock struct {
	mock.Mock
}

func (m *SubscriptionRepoMock) GetActiveSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *SubscriptionRepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}

func (m *SubscriptionRepoMock) ExpireAllOverdueSubscriptions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SubscriptionCreated(ctx context.Context, userID int64, planName string) error {
	args := m.Called(ctx, userID, planName)
	return args.Error(0)
}

func TestAdminService_GrantSubscription(t *testing.T) {
	monthlyPlan := &models.Plan{ID: 2, Name: "Monthly", MaxMenus: 3}

	t.Run("grants monthly subscription and notifies", func(t *testing.T) {
		plans := new(PlanRepoMock)
		subs := new(SubscriptionRepoMock)
		notifier := new(NotifierMock)

		subs.On("GetActiveSubscription", mock.Anything, int64(8)).
			Return(nil, errs.ErrSubscriptionNotFound).Once()
		plans.On("GetPlan", mock.Anything, int64(2)).Return(monthlyPlan, nil).Once()
		subs.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			if sub.UserID != 8 || sub.PlanID != 2 || sub.Status != models.SubscriptionStatusActive {
				return false
			}
			if sub.BillingCycle != models.BillingCycleMonthly || sub.EndDate == nil {
				return false
			}
			term := sub.EndDate.Sub(sub.StartDate)
			return term > 29*24*time.Hour && term <= 30*24*time.Hour
		})).Return(int64(55), nil).Once()
		notifier.On("SubscriptionCreated", mock.Anything, int64(8), "Monthly").Return(nil).Once()

		svc := services.NewAdminService(plans, subs, notifier, sl.DiscardLogger())
		id, err := svc.GrantSubscription(context.Background(), 8, 2, models.BillingCycleMonthly)
		require.NoError(t, err)
		assert.Equal(t, int64(55), id)
		plans.AssertExpectations(t)
		subs.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("active subscription blocks a second grant", func(t *testing.T) {
		plans := new(PlanRepoMock)
		subs := new(SubscriptionRepoMock)

		subs.On("GetActiveSubscription", mock.Anything, int64(8)).
			Return(&models.Subscription{ID: 17, UserID: 8}, nil).Once()

		svc := services.NewAdminService(plans, subs, nil, sl.DiscardLogger())
		_, err := svc.GrantSubscription(context.Background(), 8, 2, models.BillingCycleMonthly)
		require.ErrorIs(t, err, errs.ErrSubscriptionExists)
		subs.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	})

	t.Run("unknown plan propagates", func(t *testing.T) {
		plans := new(PlanRepoMock)
		subs := new(SubscriptionRepoMock)

		subs.On("GetActiveSubscription", mock.Anything, int64(8)).
			Return(nil, errs.ErrSubscriptionNotFound).Once()
		plans.On("GetPlan", mock.Anything, int64(99)).Return(nil, errs.ErrPlanNotFound).Once()

		svc := services.NewAdminService(plans, subs, nil, sl.DiscardLogger())
		_, err := svc.GrantSubscription(context.Background(), 8, 99, models.BillingCycleYearly)
		require.ErrorIs(t, err, errs.ErrPlanNotFound)
	})

	t.Run("unsupported billing cycle is rejected upfront", func(t *testing.T) {
		svc := services.NewAdminService(new(PlanRepoMock), new(SubscriptionRepoMock), nil, sl.DiscardLogger())
		_, err := svc.GrantSubscription(context.Background(), 8, 2, models.BillingCycleFree)
		require.Error(t, err)
	})

	t.Run("notifier failure does not fail the grant", func(t *testing.T) {
		plans := new(PlanRepoMock)
		subs := new(SubscriptionRepoMock)
		notifier := new(NotifierMock)

		subs.On("GetActiveSubscription", mock.Anything, int64(8)).
			Return(nil, errs.ErrSubscriptionNotFound).Once()
		plans.On("GetPlan", mock.Anything, int64(2)).Return(monthlyPlan, nil).Once()
		subs.On("CreateSubscription", mock.Anything, mock.Anything).Return(int64(56), nil).Once()
		notifier.On("SubscriptionCreated", mock.Anything, int64(8), "Monthly").
			Return(errors.New("broker down")).Once()

		svc := services.NewAdminService(plans, subs, notifier, sl.DiscardLogger())
		id, err := svc.GrantSubscription(context.Background(), 8, 2, models.BillingCycleMonthly)
		require.NoError(t, err)
		assert.Equal(t, int64(56), id)
	})
}

func TestAdminService_ExpireOverdue(t *testing.T) {
	t.Run("reports expired count", func(t *testing.T) {
		subs := new(SubscriptionRepoMock)
		subs.On("ExpireAllOverdueSubscriptions", mock.Anything).Return(int64(7), nil).Once()

		svc := services.NewAdminService(new(PlanRepoMock), subs, nil, sl.DiscardLogger())
		expired, err := svc.ExpireOverdue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), expired)
		subs.AssertExpectations(t)
	})

	t.Run("storage error propagates", func(t *testing.T) {
		subs := new(SubscriptionRepoMock)
		subs.On("ExpireAllOverdueSubscriptions", mock.Anything).
			Return(int64(0), errors.New("db down")).Once()

		svc := services.NewAdminService(new(PlanRepoMock), subs, nil, sl.DiscardLogger())
		_, err := svc.ExpireOverdue(context.Background())
		require.Error(t, err)
	})
}
