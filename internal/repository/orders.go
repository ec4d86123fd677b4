package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

const orderColumns = `id, user_id, service_id, service_name, category, link, quantity, runs, interval_minutes,
	charge, provider_cost, profit, status, start_count, remains, provider_id, provider_order_id, can_refill,
	refill_status, provider_refill_id, coupon_code, overridden, refunded, created_at, updated_at`

func insertOrder(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, service_id, service_name, category, link, quantity, runs,
			interval_minutes, charge, provider_cost, profit, status, provider_id, provider_order_id,
			can_refill, refill_status, coupon_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.UserID, o.ServiceID, o.ServiceName, o.Category, o.Link, o.Quantity, o.Runs,
		o.Interval, o.ChargeCents, o.ProviderCostCents, o.ProfitCents, string(o.Status),
		o.ProviderID, o.ProviderOrderID, o.CanRefill, string(o.RefillStatus), nullString(o.CouponCode),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o            model.Order
		status       string
		refillStatus string
		refillID     *string
		couponCode   *string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ServiceID, &o.ServiceName, &o.Category, &o.Link,
		&o.Quantity, &o.Runs, &o.Interval, &o.ChargeCents, &o.ProviderCostCents, &o.ProfitCents,
		&status, &o.StartCount, &o.Remains, &o.ProviderID, &o.ProviderOrderID, &o.CanRefill, &refillStatus,
		&refillID, &couponCode, &o.Overridden, &o.Refunded, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.RefillStatus = model.RefillStatus(refillStatus)
	o.ProviderRefillID = derefString(refillID)
	o.CouponCode = derefString(couponCode)
	return &o, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`,
		userID,
	)
}

// ListOrders возвращает последние заказы всех пользователей.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
	}
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id LIMIT $1`,
		limit,
	)
}

// ListActiveOrders возвращает страницу незавершённых заказов без ручного статуса
// с идентификатором больше afterID, по возрастанию идентификатора.
func (r *PostgresRepository) ListActiveOrders(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	statuses := make([]string, 0, len(model.ActiveOrderStatuses))
	for _, s := range model.ActiveOrderStatuses {
		statuses = append(statuses, string(s))
	}

	return r.pageOrders(ctx,
		`status = ANY($1) AND NOT overridden AND provider_order_id <> ''`,
		afterID, limit, statuses,
	)
}

// ListRefillsInFlight возвращает страницу заказов с незавершённой докруткой
// с идентификатором больше afterID, по возрастанию идентификатора.
func (r *PostgresRepository) ListRefillsInFlight(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	return r.pageOrders(ctx,
		`refill_status = ANY($1) AND COALESCE(provider_refill_id, '') <> ''`,
		afterID, limit, []string{string(model.RefillStatusRequested), string(model.RefillStatusProcessing)},
	)
}

// pageOrders выбирает страницу по ключу id; filter использует параметр $1.
func (r *PostgresRepository) pageOrders(ctx context.Context, filter, afterID string, limit int, arg any) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ` + filter + ` AND id > $2
		ORDER BY id`
	if limit > 0 {
		return r.queryOrders(ctx, query+` LIMIT $3`, arg, afterID, limit)
	}
	return r.queryOrders(ctx, query, arg, afterID)
}

// UpdateOrderProgress применяет данные сверки. Возвращает false, если заказ
// завершён или его статус задан администратором.
func (r *PostgresRepository) UpdateOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error) {
	var updated bool

	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET status = $2,
			     start_count = COALESCE($3, start_count),
			     remains = COALESCE($4, remains),
			     updated_at = now()
			 WHERE id = $1 AND NOT overridden AND status NOT IN ('COMPLETED', 'CANCELLED', 'FAILED')`,
			id, string(p.Status), p.StartCount, p.Remains,
		)
		if err != nil {
			return fmt.Errorf("update order progress: %w", err)
		}
		updated = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}

	if !updated {
		if _, err := r.GetOrder(ctx, id); err != nil {
			return false, err
		}
	}

	return updated, nil
}

// ForceOrderProgress применяет данные сверки независимо от текущего статуса и
// снимает ручной статус. Возвращает false для возвращённого заказа.
func (r *PostgresRepository) ForceOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2,
		     start_count = COALESCE($3, start_count),
		     remains = COALESCE($4, remains),
		     overridden = FALSE,
		     updated_at = now()
		 WHERE id = $1 AND NOT refunded`,
		id, string(p.Status), p.StartCount, p.Remains,
	)
	if err != nil {
		return false, fmt.Errorf("force order progress: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SetOrderStatus задаёт статус вручную и помечает заказ как переопределённый.
func (r *PostgresRepository) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return r.execOrder(ctx,
		`UPDATE orders SET status = $2, overridden = TRUE, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
}

// SetRefillStatus сохраняет состояние докрутки.
func (r *PostgresRepository) SetRefillStatus(ctx context.Context, id string, status model.RefillStatus, refillID string) error {
	return r.execOrder(ctx,
		`UPDATE orders
		 SET refill_status = $2, provider_refill_id = COALESCE($3, provider_refill_id), updated_at = now()
		 WHERE id = $1`,
		id, string(status), nullString(refillID),
	)
}

func (r *PostgresRepository) execOrder(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}
