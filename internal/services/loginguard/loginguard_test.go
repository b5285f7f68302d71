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
	services "github.com/qeematech/menu-backend/internal/services/loginguard"
)

// Мок для AttemptRepository
type AttemptRepoMock struct {
	mock.Mock
}

func (m *AttemptRepoMock) InsertLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *AttemptRepoMock) CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error) {
	args := m.Called(ctx, email, window)
	return args.Int(0), args.Error(1)
}

func (m *AttemptRepoMock) RecentFailedAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	args := m.Called(ctx, email, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LoginAttempt), args.Error(1)
}

func (m *AttemptRepoMock) DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Мок для UserLockRepository
type UserLockRepoMock struct {
	mock.Mock
}

func (m *UserLockRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserLockRepoMock) LockAccount(ctx context.Context, email string, lockedUntil time.Time, failedAttempts int) error {
	args := m.Called(ctx, email, lockedUntil, failedAttempts)
	return args.Error(0)
}

func (m *UserLockRepoMock) UnlockAccount(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func newGuard(attempts *AttemptRepoMock, users *UserLockRepoMock, failOpen bool) *services.GuardService {
	return services.NewGuardService(attempts, users, failOpen, sl.DiscardLogger())
}

func TestGuardService_RecordAttempt_NeverFails(t *testing.T) {
	attempts := new(AttemptRepoMock)
	users := new(UserLockRepoMock)
	attempts.On("InsertLoginAttempt", mock.Anything, mock.MatchedBy(func(a models.LoginAttempt) bool {
		return a.Email == "user@example.com" && !a.Success
	})).Return(errors.New("db down")).Once()

	guard := newGuard(attempts, users, true)
	// Не должно паниковать и не должно возвращать ошибку вызывающему.
	guard.RecordAttempt(context.Background(), "user@example.com", "10.0.0.1", nil, false)

	attempts.AssertExpectations(t)
}

func TestGuardService_IsAccountLocked(t *testing.T) {
	future := time.Now().UTC().Add(20 * time.Minute)
	past := time.Now().UTC().Add(-time.Minute)

	tests := []struct {
		name       string
		failOpen   bool
		setupMocks func(a *AttemptRepoMock, u *UserLockRepoMock)
		wantLocked bool
		wantErr    bool
	}{
		{
			name: "not locked",
			setupMocks: func(_ *AttemptRepoMock, u *UserLockRepoMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{Email: "user@example.com"}, nil).Once()
			},
			wantLocked: false,
		},
		{
			name: "locked until future",
			setupMocks: func(_ *AttemptRepoMock, u *UserLockRepoMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{IsLocked: true, LockedUntil: &future}, nil).Once()
			},
			wantLocked: true,
		},
		{
			name: "expired lock is lazily removed",
			setupMocks: func(_ *AttemptRepoMock, u *UserLockRepoMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{IsLocked: true, LockedUntil: &past}, nil).Once()
				u.On("UnlockAccount", mock.Anything, "user@example.com").Return(nil).Once()
			},
			wantLocked: false,
		},
		{
			name:     "storage error fails open",
			failOpen: true,
			setupMocks: func(_ *AttemptRepoMock, u *UserLockRepoMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(nil, errors.New("connection refused")).Once()
			},
			wantLocked: false,
			wantErr:    false,
		},
		{
			name:     "storage error fails closed when configured",
			failOpen: false,
			setupMocks: func(_ *AttemptRepoMock, u *UserLockRepoMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(nil, errors.New("connection refused")).Once()
			},
			wantLocked: false,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := new(AttemptRepoMock)
			users := new(UserLockRepoMock)
			tt.setupMocks(attempts, users)

			guard := newGuard(attempts, users, tt.failOpen)
			locked, _, err := guard.IsAccountLocked(context.Background(), "user@example.com")

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantLocked, locked)
			users.AssertExpectations(t)
		})
	}
}

func TestGuardService_CheckAndLockAccount(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(a *AttemptRepoMock, u *UserLockRepoMock)
		wantLocked    bool
		wantRemaining int
		wantErr       bool
	}{
		{
			name: "below threshold does not lock",
			setupMocks: func(a *AttemptRepoMock, _ *UserLockRepoMock) {
				a.On("CountRecentFailedAttempts", mock.Anything, "user@example.com", 15*time.Minute).
					Return(4, nil).Once()
			},
			wantLocked:    false,
			wantRemaining: 1,
		},
		{
			name: "first failure leaves four attempts",
			setupMocks: func(a *AttemptRepoMock, _ *UserLockRepoMock) {
				a.On("CountRecentFailedAttempts", mock.Anything, "user@example.com", 15*time.Minute).
					Return(1, nil).Once()
			},
			wantLocked:    false,
			wantRemaining: 4,
		},
		{
			name: "threshold reached locks for 30 minutes",
			setupMocks: func(a *AttemptRepoMock, u *UserLockRepoMock) {
				a.On("CountRecentFailedAttempts", mock.Anything, "user@example.com", 15*time.Minute).
					Return(5, nil).Once()
				u.On("LockAccount", mock.Anything, "user@example.com",
					mock.MatchedBy(func(until time.Time) bool {
						d := time.Until(until)
						return d > 29*time.Minute && d <= 30*time.Minute
					}), 5).Return(nil).Once()
			},
			wantLocked: true,
		},
		{
			name: "count error propagates",
			setupMocks: func(a *AttemptRepoMock, _ *UserLockRepoMock) {
				a.On("CountRecentFailedAttempts", mock.Anything, "user@example.com", 15*time.Minute).
					Return(0, errors.New("db error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := new(AttemptRepoMock)
			users := new(UserLockRepoMock)
			tt.setupMocks(attempts, users)

			guard := newGuard(attempts, users, true)
			locked, remaining, err := guard.CheckAndLockAccount(context.Background(), "user@example.com")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocked, locked)
			assert.Equal(t, tt.wantRemaining, remaining)
			attempts.AssertExpectations(t)
			users.AssertExpectations(t)
		})
	}
}

func TestGuardService_ResetFailedAttempts_Idempotent(t *testing.T) {
	attempts := new(AttemptRepoMock)
	users := new(UserLockRepoMock)
	users.On("UnlockAccount", mock.Anything, "user@example.com").Return(nil).Twice()

	guard := newGuard(attempts, users, true)
	require.NoError(t, guard.ResetFailedAttempts(context.Background(), "user@example.com"))
	require.NoError(t, guard.ResetFailedAttempts(context.Background(), "user@example.com"))
	users.AssertExpectations(t)
}

func TestGuardService_CleanupOldAttempts(t *testing.T) {
	attempts := new(AttemptRepoMock)
	users := new(UserLockRepoMock)
	attempts.On("DeleteLoginAttemptsBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		// Граница хранения должна отстоять примерно на 30 дней назад.
		age := time.Since(cutoff)
		return age > 29*24*time.Hour && age < 31*24*time.Hour
	})).Return(int64(12), nil).Once()

	guard := newGuard(attempts, users, true)
	deleted, err := guard.CleanupOldAttempts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	attempts.AssertExpectations(t)
}
