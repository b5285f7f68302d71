package repository

import (
	"context"
	"fmt"

	"github.com/qeematech/menu-backend/internal/models"
)

// MenusByUser возвращает все меню пользователя, отсортированные по времени
// создания по возрастанию: при приведении к лимитам плана старейшие меню
// сохраняются активными.
func (s *Storage) MenusByUser(ctx context.Context, userID int64) ([]*models.Menu, error) {
	const op = "storage.MenusByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, name, is_active, created_at
			  FROM menus
			  WHERE user_id = $1
			  ORDER BY created_at ASC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Menu
	for rows.Next() {
		var m models.Menu
		if err = rows.Scan(&m.ID, &m.UserID, &m.Name, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeactivateMenu деактивирует меню, не удаляя его.
func (s *Storage) DeactivateMenu(ctx context.Context, menuID int64) error {
	const op = "storage.DeactivateMenu"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE menus SET is_active = FALSE WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, menuID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MenuItemsByMenu возвращает позиции меню, отсортированные по времени
// создания по возрастанию.
func (s *Storage) MenuItemsByMenu(ctx context.Context, menuID int64) ([]*models.MenuItem, error) {
	const op = "storage.MenuItemsByMenu"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, menu_id, name, created_at
			  FROM menu_items
			  WHERE menu_id = $1
			  ORDER BY created_at ASC`
	rows, err := s.DB.QueryContext(ctx, query, menuID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		if err = rows.Scan(&item.ID, &item.MenuID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteMenuItem безвозвратно удаляет позицию меню.
func (s *Storage) DeleteMenuItem(ctx context.Context, itemID int64) error {
	const op = "storage.DeleteMenuItem"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM menu_items WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, itemID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteAdsForUser удаляет все рекламные блоки со всех меню пользователя
// и возвращает число удаленных строк.
func (s *Storage) DeleteAdsForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.DeleteAdsForUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM ads
			  WHERE menu_id IN (SELECT id FROM menus WHERE user_id = $1)`
	result, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

// DeleteBranchesForUser удаляет все филиалы со всех меню пользователя
// и возвращает число удаленных строк.
func (s *Storage) DeleteBranchesForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.DeleteBranchesForUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM branches
			  WHERE menu_id IN (SELECT id FROM menus WHERE user_id = $1)`
	result, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}
