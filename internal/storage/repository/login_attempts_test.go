package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qeematech/menu-backend/internal/models"
)

func TestInsertLoginAttempt(t *testing.T) {
	storage, mock := newMockStorage(t)
	userAgent := "curl/8.0"

	mock.ExpectExec("INSERT INTO login_attempts").
		WithArgs("User@Example.com", "10.0.0.1", false, &userAgent).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := storage.InsertLoginAttempt(context.Background(), models.LoginAttempt{
		Email:     "User@Example.com",
		IPAddress: "10.0.0.1",
		Success:   false,
		UserAgent: &userAgent,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecentFailedAttempts_PassesWindowAsInterval(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("user@example.com", "900 seconds").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := storage.CountRecentFailedAttempts(context.Background(), "user@example.com", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLoginAttemptsBefore(t *testing.T) {
	storage, mock := newMockStorage(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec("DELETE FROM login_attempts").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 250))

	deleted, err := storage.DeleteLoginAttemptsBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(250), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
