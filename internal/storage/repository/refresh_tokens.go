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

// InsertRefreshToken сохраняет новый refresh-токен.
func (s *Storage) InsertRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.InsertRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO refresh_tokens (user_id, token, expires_at)
			  VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query, userID, token, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRefreshToken возвращает запись refresh-токена по его строке.
func (s *Storage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const op = "storage.GetRefreshToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, token, expires_at, is_revoked, revoked_at, replaced_by_token, created_at
			  FROM refresh_tokens
			  WHERE token = $1`
	rt := &models.RefreshToken{}
	row := s.DB.QueryRowContext(ctx, query, token)

	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	if err := row.Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt,
		&rt.IsRevoked, &revokedAt, &replacedBy, &rt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revokedAt.Valid {
		rt.RevokedAt = &revokedAt.Time
	}
	if replacedBy.Valid {
		rt.ReplacedByToken = &replacedBy.String
	}
	return rt, nil
}

// RotateRefreshToken атомарно отзывает старый токен, связывая его
// с преемником, и вставляет новый токен в одной транзакции.
//
// Охранное условие в UPDATE гарантирует, что уже отозванный токен не
// будет ротирован повторно: в этом случае транзакция откатывается
// и возвращается ErrInvalidToken (обнаружение replay украденного токена).
func (s *Storage) RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string, expiresAt time.Time) error {
	const op = "storage.RotateRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = TRUE,
		     revoked_at = NOW(),
		     replaced_by_token = $1
		 WHERE token = $2 AND is_revoked = FALSE`,
		newToken, oldToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at)
		 VALUES ($1, $2, $3)`,
		userID, newToken, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeRefreshToken отзывает один refresh-токен. Повторный отзыв уже
// отозванного токена — no-op, не ошибка.
func (s *Storage) RevokeRefreshToken(ctx context.Context, token string) error {
	const op = "storage.RevokeRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE refresh_tokens
			  SET is_revoked = TRUE, revoked_at = NOW()
			  WHERE token = $1 AND is_revoked = FALSE`
	if _, err := s.DB.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAllRefreshTokensForUser отзывает все неотозванные refresh-токены
// пользователя и возвращает их число.
func (s *Storage) RevokeAllRefreshTokensForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.RevokeAllRefreshTokensForUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = TRUE, revoked_at = NOW()
		 WHERE user_id = $1 AND is_revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// CountActiveRefreshTokens возвращает число действующих refresh-токенов пользователя.
func (s *Storage) CountActiveRefreshTokens(ctx context.Context, userID int64) (int, error) {
	const op = "storage.CountActiveRefreshTokens"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*)
			  FROM refresh_tokens
			  WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > NOW()`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// DeleteExpiredRefreshTokensBefore удаляет токены, истекшие раньше cutoff,
// и возвращает число удаленных строк.
func (s *Storage) DeleteExpiredRefreshTokensBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "storage.DeleteExpiredRefreshTokensBefore"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}
