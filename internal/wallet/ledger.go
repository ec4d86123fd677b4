// Package wallet содержит единственную точку изменения баланса пользователей.
//
// Каждое изменение выполняется под блокировкой пользователя внутри процесса,
// а хранилище дополнительно сериализует изменения блокировкой строки.
package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/keylock"
	"github.com/mmeshcher/smm-storefront/internal/model"
)

var hundred = decimal.NewFromInt(100)

// MethodCrypto обозначает пополнение криптовалютой, для него действует бонус.
const MethodCrypto = "crypto"

// Store атомарно применяет операции к кошельку и журналу транзакций.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ApplyDebit(ctx context.Context, d model.Debit) (*model.User, error)
	ApplyCredit(ctx context.Context, c model.Credit) (*model.User, error)
	ApplyAdjustment(ctx context.Context, a model.Adjustment) (*model.User, error)
}

// Config задаёт бонусы пополнения по способам оплаты (в процентах).
type Config struct {
	DepositBonusPercent map[string]decimal.Decimal
}

// Ledger реализует списания, зачисления, корректировки и возвраты.
type Ledger struct {
	store  Store
	locks  *keylock.Locker
	cfg    Config
	logger *zap.Logger
}

// NewLedger создаёт Ledger.
func NewLedger(store Store, cfg Config, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locks:  keylock.New(),
		cfg:    cfg,
		logger: logger,
	}
}

// Balance возвращает подтверждённый баланс пользователя.
func (l *Ledger) Balance(ctx context.Context, userID string) (*model.User, error) {
	return l.store.GetUser(ctx, userID)
}

// Debit списывает amount центов. Возвращает model.ErrInsufficientFunds, если баланса не хватает.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (*model.User, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: debit %d", model.ErrInvalidAmount, amount)
	}

	return l.withUser(ctx, userID, func() (*model.User, error) {
		return l.store.ApplyDebit(ctx, model.Debit{UserID: userID, AmountCents: amount})
	})
}

// DebitForOrder списывает стоимость заказа и сохраняет заказ в одной транзакции хранилища.
func (l *Ledger) DebitForOrder(ctx context.Context, order *model.Order) (*model.User, error) {
	if order.ChargeCents < 0 {
		return nil, fmt.Errorf("%w: order charge %d", model.ErrInvalidAmount, order.ChargeCents)
	}

	return l.withUser(ctx, order.UserID, func() (*model.User, error) {
		return l.store.ApplyDebit(ctx, model.Debit{
			UserID:      order.UserID,
			AmountCents: order.ChargeCents,
			Order:       order,
		})
	})
}

// Credit зачисляет amount*(1+bonusPercent/100) центов.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, bonusPercent decimal.Decimal, method string) (*model.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit %d", model.ErrInvalidAmount, amount)
	}
	if bonusPercent.IsNegative() {
		bonusPercent = decimal.Zero
	}

	total := model.ToCents(model.FromCents(amount).Mul(decimal.NewFromInt(1).Add(bonusPercent.Div(hundred))))

	return l.withUser(ctx, userID, func() (*model.User, error) {
		return l.store.ApplyCredit(ctx, model.Credit{
			UserID:      userID,
			AmountCents: total,
			Kind:        model.TransactionDeposit,
			Method:      method,
		})
	})
}

// Deposit зачисляет пополнение с бонусом, настроенным для способа оплаты.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount int64, method string) (*model.User, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	return l.Credit(ctx, userID, amount, l.cfg.DepositBonusPercent[method], method)
}

// RefundOrder возвращает стоимость заказа ровно один раз и переводит заказ в status.
// Повторный вызов возвращает model.ErrDuplicateRefund и не двигает деньги.
func (l *Ledger) RefundOrder(ctx context.Context, order *model.Order, status model.OrderStatus) (*model.User, error) {
	if order.Refunded {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateRefund, order.ID)
	}

	return l.withUser(ctx, order.UserID, func() (*model.User, error) {
		u, err := l.store.ApplyCredit(ctx, model.Credit{
			UserID:        order.UserID,
			AmountCents:   order.ChargeCents,
			Kind:          model.TransactionRefund,
			RefundOrderID: order.ID,
			RefundStatus:  status,
			Note:          "refund for order " + order.ID,
		})
		if err != nil {
			return nil, err
		}

		l.logger.Info("order refunded",
			zap.String("orderID", order.ID),
			zap.String("userID", order.UserID),
			zap.Int64("amountCents", order.ChargeCents))
		return u, nil
	})
}

// Adjust изменяет баланс вручную без учёта в totalSpent.
// Возвращает model.ErrInvalidAdjustment, если баланс стал бы отрицательным.
func (l *Ledger) Adjust(ctx context.Context, userID string, amount int64, isAdd bool, note string) (*model.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrInvalidAdjustment)
	}

	delta := amount
	if !isAdd {
		delta = -amount
	}

	return l.withUser(ctx, userID, func() (*model.User, error) {
		u, err := l.store.ApplyAdjustment(ctx, model.Adjustment{UserID: userID, DeltaCents: delta, Note: note})
		if err != nil {
			return nil, err
		}

		l.logger.Info("balance adjusted",
			zap.String("userID", userID),
			zap.Int64("deltaCents", delta),
			zap.String("note", note))
		return u, nil
	})
}

func (l *Ledger) withUser(ctx context.Context, userID string, fn func() (*model.User, error)) (*model.User, error) {
	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	defer unlock()

	return fn()
}
