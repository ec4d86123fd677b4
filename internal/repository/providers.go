package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

const providerColumns = `id, name, base_url, api_key, status, priority, created_at`

func scanProvider(row pgx.Row) (*model.Provider, error) {
	var (
		p      model.Provider
		status string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.BaseURL, &p.Key, &status, &p.Priority, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = model.ProviderStatus(status)
	return &p, nil
}

// CreateProvider сохраняет поставщика.
func (r *PostgresRepository) CreateProvider(ctx context.Context, p model.Provider) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO providers (id, name, base_url, api_key, status, priority) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.BaseURL, p.Key, string(p.Status), p.Priority,
	)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

// GetProvider возвращает поставщика по идентификатору.
func (r *PostgresRepository) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrProviderNotFound
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

// ListProviders возвращает поставщиков по приоритету.
func (r *PostgresRepository) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY priority, name`)
	if err != nil {
		return nil, fmt.Errorf("select providers: %w", err)
	}
	defer rows.Close()

	var res []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateProvider обновляет настройки поставщика.
func (r *PostgresRepository) UpdateProvider(ctx context.Context, p model.Provider) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE providers SET name = $2, base_url = $3, api_key = $4, status = $5, priority = $6 WHERE id = $1`,
		p.ID, p.Name, p.BaseURL, p.Key, string(p.Status), p.Priority,
	)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProviderNotFound
	}
	return nil
}

// DeleteProvider удаляет поставщика.
func (r *PostgresRepository) DeleteProvider(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProviderNotFound
	}
	return nil
}
