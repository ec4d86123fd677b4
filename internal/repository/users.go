package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

const userColumns = `id, email, tier, status, balance, total_spent, profit_contribution, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		tier   string
		status string
	)
	err := row.Scan(&u.ID, &u.Email, &tier, &status, &u.BalanceCents, &u.TotalSpentCents,
		&u.ProfitContributionCents, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Tier = model.Tier(tier)
	u.Status = model.UserStatus(status)
	return &u, nil
}

// CreateUser создаёт пользователя с нулевым балансом.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	if u.Tier == "" {
		u.Tier = model.TierStandard
	}
	if u.Status == "" {
		u.Status = model.UserStatusActive
	}

	created, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, tier, status) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		u.ID, u.Email, string(u.Tier), string(u.Status),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", model.ErrUserExists, u.ID)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetUserTier меняет ценовую группу пользователя.
func (r *PostgresRepository) SetUserTier(ctx context.Context, id string, tier model.Tier) error {
	return r.execUser(ctx, `UPDATE users SET tier = $2 WHERE id = $1`, id, string(tier))
}

// SetUserStatus блокирует или разблокирует пользователя.
func (r *PostgresRepository) SetUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	return r.execUser(ctx, `UPDATE users SET status = $2 WHERE id = $1`, id, string(status))
}

func (r *PostgresRepository) execUser(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
