package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeematech/menu-backend/internal/lib/errs"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return &Storage{DB: db}, mock
}

func TestRotateRefreshToken_Success(t *testing.T) {
	storage, mock := newMockStorage(t)
	expiresAt := time.Now().Add(168 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("new-token", "old-token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(int64(42), "new-token", expiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := storage.RotateRefreshToken(context.Background(), 42, "old-token", "new-token", expiresAt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRefreshToken_AlreadyRevoked(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("new-token", "stolen-token").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := storage.RotateRefreshToken(context.Background(), 42, "stolen-token", "new-token", time.Now().Add(time.Hour))

	require.ErrorIs(t, err, errs.ErrInvalidToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRefreshToken_NotFound(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT id, user_id, token").
		WithArgs("unknown-token").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "token", "expires_at", "is_revoked",
			"revoked_at", "replaced_by_token", "created_at",
		}))

	_, err := storage.GetRefreshToken(context.Background(), "unknown-token")

	require.ErrorIs(t, err, errs.ErrInvalidToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRefreshToken_Found(t *testing.T) {
	storage, mock := newMockStorage(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, user_id, token").
		WithArgs("known-token").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "token", "expires_at", "is_revoked",
			"revoked_at", "replaced_by_token", "created_at",
		}).AddRow(int64(7), int64(42), "known-token", now.Add(time.Hour), false, nil, nil, now))

	rt, err := storage.GetRefreshToken(context.Background(), "known-token")

	require.NoError(t, err)
	assert.Equal(t, int64(42), rt.UserID)
	assert.False(t, rt.IsRevoked)
	assert.Nil(t, rt.RevokedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeRefreshToken_AlreadyRevokedIsNoop(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("revoked-token").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := storage.RevokeRefreshToken(context.Background(), "revoked-token")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllRefreshTokensForUser(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := storage.RevokeAllRefreshTokensForUser(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredRefreshTokensBefore(t *testing.T) {
	storage, mock := newMockStorage(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := storage.DeleteExpiredRefreshTokensBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
