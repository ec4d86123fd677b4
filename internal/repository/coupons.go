package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

const couponColumns = `code, type, value::text, usage_limit, used_count, expires_at, active, created_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		c     model.Coupon
		typ   string
		value string
	)
	if err := row.Scan(&c.Code, &typ, &value, &c.UsageLimit, &c.UsedCount, &c.ExpiresAt,
		&c.Active, &c.CreatedAt); err != nil {
		return nil, err
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse coupon value %q: %w", value, err)
	}
	c.Type = model.DiscountType(typ)
	c.Value = v
	return &c, nil
}

// CreateCoupon сохраняет новый купон.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c model.Coupon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO coupons (code, type, value, usage_limit, expires_at, active)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		model.NormalizeCouponCode(c.Code), string(c.Type), c.Value.String(), c.UsageLimit, c.ExpiresAt, c.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", model.ErrCouponExists, c.Code)
		}
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

// GetCoupon возвращает купон по коду; для неизвестного кода model.ErrCouponInvalid.
func (r *PostgresRepository) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		model.NormalizeCouponCode(code),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// ListCoupons возвращает все купоны по коду.
func (r *PostgresRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var res []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetCouponActive включает или выключает купон.
func (r *PostgresRepository) SetCouponActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET active = $2 WHERE code = $1`,
		model.NormalizeCouponCode(code), active,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	return nil
}

// ReserveCoupon занимает одно использование купона условным UPDATE. Для
// неактивного, истёкшего или исчерпанного купона возвращает model.ErrCouponInvalid.
func (r *PostgresRepository) ReserveCoupon(ctx context.Context, code string) error {
	code = model.NormalizeCouponCode(code)

	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE code = $1 AND active AND expires_at >= $2 AND used_count < usage_limit`,
		code, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("reserve coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrCouponInvalid, code)
	}
	return nil
}

// ReleaseCoupon возвращает использование, занятое ReserveCoupon.
func (r *PostgresRepository) ReleaseCoupon(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE code = $1`,
		model.NormalizeCouponCode(code),
	)
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	return nil
}

// DeleteCoupon удаляет купон. Заказы сохраняют историю без ссылки на код.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, model.NormalizeCouponCode(code))
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	return nil
}
