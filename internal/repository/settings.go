package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// GetSettings возвращает настройки или nil, если они ещё не сохранялись.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	var (
		s      model.Settings
		markup string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT markup_percent::text, updated_at FROM settings WHERE id = 1`,
	).Scan(&markup, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	s.MarkupPercent, err = decimal.NewFromString(markup)
	if err != nil {
		return nil, fmt.Errorf("parse markup %q: %w", markup, err)
	}
	return &s, nil
}

// UpdateSettings сохраняет настройки.
func (r *PostgresRepository) UpdateSettings(ctx context.Context, s model.Settings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (id, markup_percent, updated_at) VALUES (1, $1::numeric, now())
		 ON CONFLICT (id) DO UPDATE SET markup_percent = EXCLUDED.markup_percent, updated_at = now()`,
		s.MarkupPercent.String(),
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// Stats возвращает сводные показатели.
func (r *PostgresRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats

	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COALESCE(SUM(balance), 0)::bigint FROM users),
			COUNT(*),
			COUNT(*) FILTER (WHERE status NOT IN ('COMPLETED', 'CANCELLED', 'FAILED')),
			COALESCE(SUM(charge) FILTER (WHERE NOT refunded), 0)::bigint,
			COALESCE(SUM(profit) FILTER (WHERE NOT refunded), 0)::bigint
		 FROM orders`,
	).Scan(&st.Users, &st.BalancesCents, &st.Orders, &st.ActiveOrders, &st.RevenueCents, &st.ProfitCents)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}

	return &st, nil
}
