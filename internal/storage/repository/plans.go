package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/models"
)

const planColumns = `id, name, price_monthly, price_yearly, max_menus,
			      max_products_per_menu, has_ads, allow_custom_domain, allow_branches, is_active`

func scanPlan(row *sql.Row) (*models.Plan, error) {
	p := &models.Plan{}
	err := row.Scan(&p.ID, &p.Name, &p.PriceMonthly, &p.PriceYearly, &p.MaxMenus,
		&p.MaxProductsPerMenu, &p.HasAds, &p.AllowCustomDomain, &p.AllowBranches, &p.IsActive)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlan возвращает тарифный план по ID.
func (s *Storage) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	const op = "storage.GetPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetFreePlan возвращает бесплатный тарифный план (price_monthly = 0).
func (s *Storage) GetFreePlan(ctx context.Context) (*models.Plan, error) {
	const op = "storage.GetFreePlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE price_monthly = 0 AND is_active = TRUE LIMIT 1`
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
