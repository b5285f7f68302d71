package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/qeematech/menu-backend/internal/models"
)

// InsertLoginAttempt сохраняет запись аудита попытки входа.
func (s *Storage) InsertLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error {
	const op = "storage.InsertLoginAttempt"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO login_attempts (email, ip_address, success, user_agent)
			  VALUES (LOWER($1), $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query,
		attempt.Email, attempt.IPAddress, attempt.Success, attempt.UserAgent); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountRecentFailedAttempts считает неудачные попытки входа для email
// в скользящем окне window от текущего момента.
func (s *Storage) CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error) {
	const op = "storage.CountRecentFailedAttempts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*)
			  FROM login_attempts
			  WHERE email = LOWER($1)
			    AND success = FALSE
			    AND attempted_at > NOW() - $2::INTERVAL`
	var count int
	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	if err := s.DB.QueryRowContext(ctx, query, email, interval).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// RecentFailedAttempts возвращает последние неудачные попытки входа
// для мониторинга; email пустой — по всем аккаунтам.
func (s *Storage) RecentFailedAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	const op = "storage.RecentFailedAttempts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, email, ip_address, success, user_agent, attempted_at
			  FROM login_attempts
			  WHERE success = FALSE
			    AND ($1 = '' OR email = LOWER($1))
			  ORDER BY attempted_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.LoginAttempt
	for rows.Next() {
		var a models.LoginAttempt
		var userAgent sql.NullString
		if err = rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.Success,
			&userAgent, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if userAgent.Valid {
			a.UserAgent = &userAgent.String
		}
		result = append(result, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteLoginAttemptsBefore удаляет записи аудита старше cutoff
// и возвращает число удаленных строк.
func (s *Storage) DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "storage.DeleteLoginAttemptsBefore"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}
