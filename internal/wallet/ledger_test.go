package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/repository"
)

func newTestLedger(t *testing.T, balance int64) (*Ledger, *repository.MemoryRepository) {
	t.Helper()

	store := repository.NewMemoryRepository()
	_, err := store.CreateUser(context.Background(), model.User{ID: "u1"})
	require.NoError(t, err)

	l := NewLedger(store, Config{
		DepositBonusPercent: map[string]decimal.Decimal{MethodCrypto: decimal.NewFromInt(5)},
	}, zap.NewNop())

	if balance > 0 {
		_, err = l.Adjust(context.Background(), "u1", balance, true, "seed")
		require.NoError(t, err)
	}

	return l, store
}

func TestDebit_ConcurrentNeverOverdraws(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(context.Background(), "u1", 600); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	u, err := l.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), success.Load())
	assert.Equal(t, int64(400), u.BalanceCents)
	assert.Equal(t, int64(600), u.TotalSpentCents)
}

func TestDebit_Validation(t *testing.T) {
	l, _ := newTestLedger(t, 100)

	_, err := l.Debit(context.Background(), "u1", -1)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = l.Debit(context.Background(), "u1", 101)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	_, err = l.Debit(context.Background(), "nobody", 1)
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestDeposit_CryptoBonus(t *testing.T) {
	l, store := newTestLedger(t, 0)

	u, err := l.Deposit(context.Background(), "u1", 10000, " Crypto ")
	require.NoError(t, err)
	assert.Equal(t, int64(10500), u.BalanceCents)

	u, err = l.Deposit(context.Background(), "u1", 1000, "card")
	require.NoError(t, err)
	assert.Equal(t, int64(11500), u.BalanceCents)
	assert.Zero(t, u.TotalSpentCents)

	txs, err := store.ListTransactions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.TransactionDeposit, txs[1].Kind)
	assert.Equal(t, MethodCrypto, txs[1].Method)
	assert.Equal(t, int64(10500), txs[1].AmountCents)

	_, err = l.Deposit(context.Background(), "u1", 0, "card")
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestCredit_BonusRoundsHalfUp(t *testing.T) {
	l, _ := newTestLedger(t, 0)

	// 0.10 * 1.05 = 0.105
	u, err := l.Credit(context.Background(), "u1", 10, decimal.NewFromInt(5), "crypto")
	require.NoError(t, err)
	assert.Equal(t, int64(11), u.BalanceCents)
}

func TestAdjust(t *testing.T) {
	l, _ := newTestLedger(t, 500)

	_, err := l.Adjust(context.Background(), "u1", 501, false, "chargeback")
	require.ErrorIs(t, err, model.ErrInvalidAdjustment)

	_, err = l.Adjust(context.Background(), "u1", 0, true, "noop")
	require.ErrorIs(t, err, model.ErrInvalidAdjustment)

	u, err := l.Adjust(context.Background(), "u1", 500, false, "chargeback")
	require.NoError(t, err)
	assert.Zero(t, u.BalanceCents)
	assert.Zero(t, u.TotalSpentCents)
}

func TestRefundOrder_OnlyOnce(t *testing.T) {
	l, store := newTestLedger(t, 1000)
	ctx := context.Background()

	order := &model.Order{
		ID:              "o1",
		UserID:          "u1",
		ChargeCents:     500,
		ProfitCents:     100,
		Status:          model.OrderStatusPending,
		ProviderOrderID: "1",
		RefillStatus:    model.RefillStatusNone,
	}
	_, err := l.DebitForOrder(ctx, order)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var refunded atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RefundOrder(ctx, order, model.OrderStatusCancelled); err == nil {
				refunded.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrDuplicateRefund)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refunded.Load())

	u, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.BalanceCents)
	assert.Zero(t, u.TotalSpentCents)
	assert.Zero(t, u.ProfitContributionCents)

	stored, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, stored.Refunded)

	_, err = l.RefundOrder(ctx, stored, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, model.ErrDuplicateRefund)
}
