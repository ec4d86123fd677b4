package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// lockUser блокирует строку пользователя до конца транзакции и возвращает текущий баланс.
func lockUser(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user for update: %w", err)
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, balance_after, order_id, method, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), t.UserID, string(t.Kind), t.AmountCents, t.BalanceAfterCents,
		nullString(t.OrderID), t.Method, t.Note,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ApplyDebit списывает средства под блокировкой строки пользователя. Если задан заказ,
// он сохраняется в той же транзакции; купон заказа уже зарезервирован.
func (r *PostgresRepository) ApplyDebit(ctx context.Context, d model.Debit) (*model.User, error) {
	var res *model.User

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockUser(ctx, tx, d.UserID)
		if err != nil {
			return err
		}

		if d.AmountCents > balance {
			return fmt.Errorf("%w: need %d, have %d", model.ErrInsufficientFunds, d.AmountCents, balance)
		}

		kind := model.TransactionDebit
		var (
			orderID string
			profit  int64
		)

		if d.Order != nil {
			if err := insertOrder(ctx, tx, d.Order); err != nil {
				return err
			}
			kind = model.TransactionOrder
			orderID = d.Order.ID
			profit = d.Order.ProfitCents
		}

		u, err := scanUser(tx.QueryRow(ctx,
			`UPDATE users
			 SET balance = balance - $2, total_spent = total_spent + $2, profit_contribution = profit_contribution + $3
			 WHERE id = $1
			 RETURNING `+userColumns,
			d.UserID, d.AmountCents, profit,
		))
		if err != nil {
			if isCheckViolation(err) {
				return model.ErrInsufficientFunds
			}
			return fmt.Errorf("debit user: %w", err)
		}

		if err := insertTransaction(ctx, tx, model.Transaction{
			UserID:            u.ID,
			Kind:              kind,
			AmountCents:       -d.AmountCents,
			BalanceAfterCents: u.BalanceCents,
			OrderID:           orderID,
			Note:              d.Note,
		}); err != nil {
			return err
		}

		res = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// ApplyCredit зачисляет средства. Возврат по заказу помечает заказ возвращённым
// в той же транзакции и вычитает заказ из totalSpent и profitContribution;
// повторный возврат отклоняется.
func (r *PostgresRepository) ApplyCredit(ctx context.Context, c model.Credit) (*model.User, error) {
	var res *model.User

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := lockUser(ctx, tx, c.UserID)
		if err != nil {
			return err
		}

		var charge, profit int64
		if c.RefundOrderID != "" {
			charge, profit, err = markRefunded(ctx, tx, c.UserID, c.RefundOrderID, c.RefundStatus)
			if err != nil {
				return err
			}
		}

		u, err := scanUser(tx.QueryRow(ctx,
			`UPDATE users
			 SET balance = balance + $2, total_spent = total_spent - $3, profit_contribution = profit_contribution - $4
			 WHERE id = $1
			 RETURNING `+userColumns,
			c.UserID, c.AmountCents, charge, profit,
		))
		if err != nil {
			return fmt.Errorf("credit user: %w", err)
		}

		if err := insertTransaction(ctx, tx, model.Transaction{
			UserID:            u.ID,
			Kind:              c.Kind,
			AmountCents:       c.AmountCents,
			BalanceAfterCents: u.BalanceCents,
			OrderID:           c.RefundOrderID,
			Method:            c.Method,
			Note:              c.Note,
		}); err != nil {
			return err
		}

		res = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// markRefunded помечает заказ возвращённым и отдаёт его стоимость и прибыль.
func markRefunded(ctx context.Context, tx pgx.Tx, userID, orderID string, status model.OrderStatus) (int64, int64, error) {
	var (
		refunded       bool
		charge, profit int64
	)
	err := tx.QueryRow(ctx,
		`SELECT refunded, charge, profit FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, userID,
	).Scan(&refunded, &charge, &profit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, model.ErrOrderNotFound
		}
		return 0, 0, fmt.Errorf("lock order: %w", err)
	}

	if refunded {
		return 0, 0, fmt.Errorf("%w: %s", model.ErrDuplicateRefund, orderID)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET refunded = TRUE, overridden = TRUE, status = $2, updated_at = now() WHERE id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("mark order refunded: %w", err)
	}
	return charge, profit, nil
}

// ApplyAdjustment изменяет баланс на DeltaCents, не допуская отрицательного результата.
func (r *PostgresRepository) ApplyAdjustment(ctx context.Context, a model.Adjustment) (*model.User, error) {
	var res *model.User

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockUser(ctx, tx, a.UserID)
		if err != nil {
			return err
		}

		if balance+a.DeltaCents < 0 {
			return fmt.Errorf("%w: balance %d, delta %d", model.ErrInvalidAdjustment, balance, a.DeltaCents)
		}

		u, err := scanUser(tx.QueryRow(ctx,
			`UPDATE users SET balance = balance + $2 WHERE id = $1 RETURNING `+userColumns,
			a.UserID, a.DeltaCents,
		))
		if err != nil {
			return fmt.Errorf("adjust user: %w", err)
		}

		if err := insertTransaction(ctx, tx, model.Transaction{
			UserID:            u.ID,
			Kind:              model.TransactionAdjustment,
			AmountCents:       a.DeltaCents,
			BalanceAfterCents: u.BalanceCents,
			Note:              a.Note,
		}); err != nil {
			return err
		}

		res = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// ListTransactions возвращает журнал операций пользователя, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, kind, amount, balance_after, order_id, method, note, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t       model.Transaction
			kind    string
			orderID *string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.AmountCents, &t.BalanceAfterCents,
			&orderID, &t.Method, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = model.TransactionKind(kind)
		t.OrderID = derefString(orderID)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
