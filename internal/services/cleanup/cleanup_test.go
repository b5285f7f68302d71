package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/qeematech/menu-backend/internal/lib/lock"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	services "github.com/qeematech/menu-backend/internal/services/cleanup"
)

// Мок для AttemptCleaner
type AttemptCleanerMock struct {
	mock.Mock
}

func (m *AttemptCleanerMock) CleanupOldAttempts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Мок для TokenCleaner
type TokenCleanerMock struct {
	mock.Mock
}

func (m *TokenCleanerMock) CleanupExpired(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

type heldLocker struct{}

func (heldLocker) TryAcquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, nil
}

func TestCleanupService_RunOnce(t *testing.T) {
	t.Run("purges both categories", func(t *testing.T) {
		attempts := new(AttemptCleanerMock)
		tokens := new(TokenCleanerMock)
		attempts.On("CleanupOldAttempts", mock.Anything).Return(int64(10), nil).Once()
		tokens.On("CleanupExpired", mock.Anything).Return(int64(3), int64(7), nil).Once()

		svc := services.NewCleanupService(attempts, tokens, lock.NoopLocker{}, 24*time.Hour, 10*time.Minute, sl.DiscardLogger())
		svc.RunOnce(context.Background())
		attempts.AssertExpectations(t)
		tokens.AssertExpectations(t)
	})

	t.Run("attempt failure does not stop token cleanup", func(t *testing.T) {
		attempts := new(AttemptCleanerMock)
		tokens := new(TokenCleanerMock)
		attempts.On("CleanupOldAttempts", mock.Anything).
			Return(int64(0), errors.New("db down")).Once()
		tokens.On("CleanupExpired", mock.Anything).Return(int64(0), int64(0), nil).Once()

		svc := services.NewCleanupService(attempts, tokens, lock.NoopLocker{}, 24*time.Hour, 10*time.Minute, sl.DiscardLogger())
		svc.RunOnce(context.Background())
		tokens.AssertExpectations(t)
	})

	t.Run("lock held elsewhere skips everything", func(t *testing.T) {
		attempts := new(AttemptCleanerMock)
		tokens := new(TokenCleanerMock)

		svc := services.NewCleanupService(attempts, tokens, heldLocker{}, 24*time.Hour, 10*time.Minute, sl.DiscardLogger())
		svc.RunOnce(context.Background())
		attempts.AssertNotCalled(t, "CleanupOldAttempts", mock.Anything)
		tokens.AssertNotCalled(t, "CleanupExpired", mock.Anything)
	})
}
