package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/qeematech/menu-backend/internal/models"
)

// InsertBlacklistEntry добавляет токен в черный список. Срок жизни записи
// совпадает со сроком жизни самого токена, поэтому хранилище
// самоочищается фоновым удалением истекших строк.
func (s *Storage) InsertBlacklistEntry(ctx context.Context, entry models.BlacklistEntry) error {
	const op = "storage.InsertBlacklistEntry"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO token_blacklist (token, user_id, token_type, reason, expires_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		entry.Token, entry.UserID, entry.TokenType, entry.Reason, entry.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsTokenBlacklisted сообщает, числится ли токен в черном списке.
// Истекшие записи не учитываются, даже если еще не удалены очисткой.
func (s *Storage) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	const op = "storage.IsTokenBlacklisted"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM token_blacklist
			      WHERE token = $1 AND expires_at > NOW()
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// DeleteExpiredBlacklistEntries удаляет истекшие записи черного списка
// и возвращает число удаленных строк.
func (s *Storage) DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.DeleteExpiredBlacklistEntries"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM token_blacklist WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}
