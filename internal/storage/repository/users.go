package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/models"
)

// GetUserByEmail возвращает пользователя по email без учета регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, email, name, password_hash, role, is_suspended, suspension_reason,
			      is_locked, locked_until, failed_login_attempts, last_failed_login_at, created_at
			  FROM users
			  WHERE LOWER(email) = LOWER($1)`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, email)

	var passwordHash, suspensionReason sql.NullString
	var lockedUntil, lastFailedLoginAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &u.Role,
		&u.IsSuspended, &suspensionReason, &u.IsLocked, &lockedUntil,
		&u.FailedLoginAttempts, &lastFailedLoginAt, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if suspensionReason.Valid {
		u.SuspensionReason = &suspensionReason.String
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastFailedLoginAt.Valid {
		u.LastFailedLoginAt = &lastFailedLoginAt.Time
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUserByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, email, name, password_hash, role, is_suspended, suspension_reason,
			      is_locked, locked_until, failed_login_attempts, last_failed_login_at, created_at
			  FROM users
			  WHERE id = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, id)

	var passwordHash, suspensionReason sql.NullString
	var lockedUntil, lastFailedLoginAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &u.Role,
		&u.IsSuspended, &suspensionReason, &u.IsLocked, &lockedUntil,
		&u.FailedLoginAttempts, &lastFailedLoginAt, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if suspensionReason.Valid {
		u.SuspensionReason = &suspensionReason.String
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastFailedLoginAt.Valid {
		u.LastFailedLoginAt = &lastFailedLoginAt.Time
	}
	return u, nil
}

// LockAccount выставляет блокировку аккаунта до lockedUntil и фиксирует
// число неудачных попыток. Последняя запись выигрывает: конкурирующие
// запросы могут пересчитать счетчик независимо, итоговое состояние
// эквивалентно.
func (s *Storage) LockAccount(ctx context.Context, email string, lockedUntil time.Time, failedAttempts int) error {
	const op = "storage.LockAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_locked = TRUE,
			      locked_until = $1,
			      failed_login_attempts = $2,
			      last_failed_login_at = NOW()
			  WHERE LOWER(email) = LOWER($3)`
	if _, err := s.DB.ExecContext(ctx, query, lockedUntil, failedAttempts, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UnlockAccount снимает блокировку и обнуляет счетчики неудачных попыток.
// Операция идемпотентна: применима и к незаблокированному аккаунту.
func (s *Storage) UnlockAccount(ctx context.Context, email string) error {
	const op = "storage.UnlockAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_locked = FALSE,
			      locked_until = NULL,
			      failed_login_attempts = 0,
			      last_failed_login_at = NULL
			  WHERE LOWER(email) = LOWER($1)`
	if _, err := s.DB.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
