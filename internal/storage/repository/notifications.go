package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/qeematech/menu-backend/internal/models"
)

// InsertNotification сохраняет двуязычное уведомление пользователя.
func (s *Storage) InsertNotification(ctx context.Context, n models.Notification) error {
	const op = "storage.InsertNotification"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var metadata any
	if n.Metadata != nil {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		metadata = raw
	}

	query := `INSERT INTO notifications (user_id, type, title, title_ar, message, message_ar, metadata)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.DB.ExecContext(ctx, query,
		n.UserID, n.Type, n.Title, n.TitleAr, n.Message, n.MessageAr, metadata); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (s *Storage) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	const op = "storage.ListNotifications"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, type, title, title_ar, message, message_ar,
			      is_read, metadata, created_at, read_at
			  FROM notifications
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Notification
	for rows.Next() {
		var n models.Notification
		var metadata []byte
		var readAt sql.NullTime
		if err = rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.TitleAr,
			&n.Message, &n.MessageAr, &n.IsRead, &metadata, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(metadata) > 0 {
			if err = json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		result = append(result, &n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений пользователя.
func (s *Storage) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	const op = "storage.CountUnreadNotifications"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
