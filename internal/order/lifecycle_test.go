package order

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/pricing"
	"github.com/mmeshcher/smm-storefront/internal/provider"
	"github.com/mmeshcher/smm-storefront/internal/repository"
	"github.com/mmeshcher/smm-storefront/internal/wallet"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) AddOrder(ctx context.Context, req provider.OrderRequest) (*provider.PlacedOrder, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*provider.PlacedOrder)
	return p, args.Error(1)
}

func (m *mockProvider) StatusOrSimulated(ctx context.Context, providerID, providerOrderID string) (*provider.OrderStatus, error) {
	args := m.Called(ctx, providerID, providerOrderID)
	st, _ := args.Get(0).(*provider.OrderStatus)
	return st, args.Error(1)
}

func (m *mockProvider) Refill(ctx context.Context, providerID, providerOrderID string) (*provider.RefillResult, error) {
	args := m.Called(ctx, providerID, providerOrderID)
	r, _ := args.Get(0).(*provider.RefillResult)
	return r, args.Error(1)
}

func (m *mockProvider) RefillStatus(ctx context.Context, providerID, refillID string) (*provider.RefillState, error) {
	args := m.Called(ctx, providerID, refillID)
	st, _ := args.Get(0).(*provider.RefillState)
	return st, args.Error(1)
}

type stubCatalog map[int64]model.Service

func (c stubCatalog) Lookup(_ context.Context, id int64) (model.Service, error) {
	s, ok := c[id]
	if !ok {
		return model.Service{}, model.ErrServiceNotFound
	}
	return s, nil
}

var testCatalog = stubCatalog{
	1: {
		ID:           1,
		Name:         "Instagram Followers",
		Category:     "Instagram",
		ProviderRate: decimal.RequireFromString("4.00"),
		SellRate:     decimal.RequireFromString("5.00"),
		Min:          100,
		Max:          10000,
		Refill:       true,
	},
	2: {
		ID:           2,
		Name:         "Instagram Likes",
		Category:     "Instagram",
		ProviderRate: decimal.RequireFromString("0.50"),
		SellRate:     decimal.RequireFromString("1.00"),
		Min:          50,
		Max:          1000,
		Dripfeed:     true,
	},
}

const (
	testLink     = "https://instagram.com/someone"
	testProvider = "panel-a"
)

type fixture struct {
	store     *repository.MemoryRepository
	provider  *mockProvider
	lifecycle *Lifecycle
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	store := repository.NewMemoryRepository()
	ctx := context.Background()

	_, err := store.CreateUser(ctx, model.User{ID: "u1"})
	require.NoError(t, err)
	if balance > 0 {
		_, err = store.ApplyAdjustment(ctx, model.Adjustment{UserID: "u1", DeltaCents: balance})
		require.NoError(t, err)
	}

	p := &mockProvider{}
	ledger := wallet.NewLedger(store, wallet.Config{}, zap.NewNop())
	lc := New(store, testCatalog, pricing.NewEngine(pricing.DefaultConfig()), ledger, p, Config{
		SyncBatchSize:   10,
		SyncConcurrency: 2,
	}, zap.NewNop())

	return &fixture{store: store, provider: p, lifecycle: lc}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	return u.BalanceCents
}

func (f *fixture) orders(t *testing.T) []model.Order {
	t.Helper()
	orders, err := f.store.ListOrdersByUser(context.Background(), "u1")
	require.NoError(t, err)
	return orders
}

func (f *fixture) place(t *testing.T, providerOrderID string) *model.Order {
	t.Helper()
	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Return(&provider.PlacedOrder{ProviderID: testProvider, ProviderOrderID: providerOrderID}, nil).Once()

	p, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.NoError(t, err)
	return p.Order
}

func TestPlaceOrder_InsufficientFundsHasNoSideEffects(t *testing.T) {
	f := newFixture(t, 300)

	_, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	f.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything)
	assert.Equal(t, int64(300), f.balance(t))
	assert.Empty(t, f.orders(t))
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(t, 1000)

	f.provider.On("AddOrder", mock.Anything, provider.OrderRequest{
		ServiceID: 1,
		Link:      testLink,
		Quantity:  1000,
	}).Return(&provider.PlacedOrder{ProviderID: testProvider, ProviderOrderID: "555"}, nil).Once()

	p, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.NoError(t, err)
	f.provider.AssertExpectations(t)
	assert.Equal(t, testProvider, p.Order.ProviderID)

	assert.Equal(t, int64(500), p.User.BalanceCents)
	assert.Equal(t, int64(500), p.Order.ChargeCents)
	assert.Equal(t, int64(400), p.Order.ProviderCostCents)
	assert.Equal(t, int64(100), p.Order.ProfitCents)
	assert.Equal(t, model.OrderStatusPending, p.Order.Status)
	assert.Equal(t, "555", p.Order.ProviderOrderID)
	assert.True(t, p.Order.CanRefill)

	assert.Equal(t, int64(500), f.balance(t))
	require.Len(t, f.orders(t), 1)
	assert.Equal(t, testProvider, f.orders(t)[0].ProviderID)

	u, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), u.TotalSpentCents)
	assert.Equal(t, int64(100), u.ProfitContributionCents)
}

func TestPlaceOrder_ProviderTimeoutCommitsNothing(t *testing.T) {
	f := newFixture(t, 1000)

	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Return(nil, &provider.TransportError{Action: "add", Err: context.DeadlineExceeded}).Once()

	_, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.ErrorIs(t, err, provider.ErrTransport)

	assert.Equal(t, int64(1000), f.balance(t))
	assert.Empty(t, f.orders(t))
}

func TestPlaceOrder_ProviderRejection(t *testing.T) {
	f := newFixture(t, 1000)

	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Return(nil, &provider.RejectedError{Action: "add", Message: "Incorrect link"}).Once()

	_, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.ErrorIs(t, err, provider.ErrRejected)
	assert.Equal(t, int64(1000), f.balance(t))
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name:    "below min",
			req:     Request{ServiceID: 1, Link: testLink, Quantity: 50},
			wantErr: model.ErrQuantityOutOfRange,
		},
		{
			name:    "above max",
			req:     Request{ServiceID: 1, Link: testLink, Quantity: 10001},
			wantErr: model.ErrQuantityOutOfRange,
		},
		{
			name:    "unknown service",
			req:     Request{ServiceID: 99, Link: testLink, Quantity: 100},
			wantErr: model.ErrServiceNotFound,
		},
		{
			name:    "bad link",
			req:     Request{ServiceID: 1, Link: "someone", Quantity: 100},
			wantErr: model.ErrInvalidLink,
		},
		{
			name:    "drip-feed on regular service",
			req:     Request{ServiceID: 1, Link: testLink, Quantity: 100, Runs: 2, Interval: 10},
			wantErr: model.ErrDripfeedUnsupported,
		},
		{
			name:    "unknown coupon",
			req:     Request{ServiceID: 1, Link: testLink, Quantity: 100, CouponCode: "nope"},
			wantErr: model.ErrCouponInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100000)

			_, err := f.lifecycle.PlaceOrder(context.Background(), "u1", tt.req)
			require.ErrorIs(t, err, tt.wantErr)

			f.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything)
			assert.Equal(t, int64(100000), f.balance(t))
		})
	}
}

func TestPlaceOrder_BannedUser(t *testing.T) {
	f := newFixture(t, 1000)
	require.NoError(t, f.store.SetUserStatus(context.Background(), "u1", model.UserStatusBanned))

	_, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.ErrorIs(t, err, model.ErrUserBanned)
	f.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything)
}

func TestPlaceOrder_DripfeedBillsAllRuns(t *testing.T) {
	f := newFixture(t, 1000)

	f.provider.On("AddOrder", mock.Anything, provider.OrderRequest{
		ServiceID: 2,
		Link:      testLink,
		Quantity:  100,
		Runs:      3,
		Interval:  15,
	}).Return(&provider.PlacedOrder{ProviderOrderID: "777"}, nil).Once()

	p, err := f.lifecycle.PlaceOrder(context.Background(), "u1", Request{
		ServiceID: 2, Link: testLink, Quantity: 100, Runs: 3, Interval: 15,
	})
	require.NoError(t, err)
	f.provider.AssertExpectations(t)

	assert.Equal(t, int64(300), p.Quote.Quantity)
	assert.Equal(t, int64(30), p.Order.ChargeCents)
	assert.Equal(t, int64(970), f.balance(t))
}

func TestPlaceOrder_CouponUsedExactlyOnce(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	require.NoError(t, f.store.CreateCoupon(ctx, model.Coupon{
		Code:       "SAVE10",
		Type:       model.DiscountPercentage,
		Value:      decimal.NewFromInt(10),
		UsageLimit: 5,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
		Active:     true,
	}))

	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Return(&provider.PlacedOrder{ProviderOrderID: "555"}, nil).Once()

	p, err := f.lifecycle.PlaceOrder(ctx, "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000, CouponCode: " save10"})
	require.NoError(t, err)

	assert.Equal(t, int64(450), p.Order.ChargeCents)
	assert.Equal(t, int64(50), p.Quote.DiscountCents)
	assert.Equal(t, "SAVE10", p.Order.CouponCode)
	assert.Equal(t, int64(550), f.balance(t))

	c, err := f.store.GetCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsedCount)
}

func TestQuote_NoSideEffects(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.SetUserTier(context.Background(), "u1", model.TierVIP))
	require.NoError(t, f.store.UpdateSettings(context.Background(), model.Settings{MarkupPercent: decimal.NewFromInt(20)}))

	q, err := f.lifecycle.Quote(context.Background(), "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.NoError(t, err)

	// 5.00 * 1.10
	assert.Equal(t, int64(550), q.Quote.ChargeCents)
	assert.True(t, q.Quote.EffectiveMarkup.Equal(decimal.NewFromInt(10)))
	f.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything)
	assert.Empty(t, f.orders(t))
}

func TestSyncStatus_SimulatedIsNotPersisted(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: provider.SimulatedStatus, Simulated: true}, nil).Once()

	res, err := f.lifecycle.SyncStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, res.Provider.Simulated)
	assert.False(t, res.Updated)

	stored, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.StartCount)
	assert.Nil(t, stored.Remains)
}

func TestSyncStatus_AppliesProviderProgress(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	start, remains := int64(3572), int64(157)
	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "Partial", StartCount: &start, Remains: &remains}, nil).Once()

	res, err := f.lifecycle.SyncStatus(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, res.Updated)

	assert.Equal(t, model.OrderStatusPartial, res.Order.Status)
	require.NotNil(t, res.Order.StartCount)
	assert.Equal(t, int64(3572), *res.Order.StartCount)
	assert.Equal(t, int64(500), res.Order.ChargeCents)
	assert.Equal(t, int64(500), f.balance(t))
}

func TestSyncStatus_OverrideWins(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	_, err := f.lifecycle.AdminOverride(context.Background(), o.ID, model.OrderStatusInProgress, false)
	require.NoError(t, err)

	res, err := f.lifecycle.SyncStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	f.provider.AssertNotCalled(t, "StatusOrSimulated", mock.Anything, mock.Anything, mock.Anything)

	stored, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusInProgress, stored.Status)
	assert.True(t, stored.Overridden)
}

func TestSyncStatus_UnknownStatusIgnored(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "Queued somewhere"}, nil).Once()

	res, err := f.lifecycle.SyncStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, model.OrderStatusPending, res.Order.Status)
}

func TestResync_ClearsOverride(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	_, err := f.lifecycle.AdminOverride(context.Background(), o.ID, model.OrderStatusProcessing, false)
	require.NoError(t, err)

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "In progress"}, nil).Once()

	res, err := f.lifecycle.Resync(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, res.Updated)
	assert.Equal(t, model.OrderStatusInProgress, res.Order.Status)
	assert.False(t, res.Order.Overridden)
}

func TestAdminOverride_RefundOnce(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")
	assert.Equal(t, int64(500), f.balance(t))

	updated, err := f.lifecycle.AdminOverride(context.Background(), o.ID, model.OrderStatusCancelled, true)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, updated.Status)
	assert.True(t, updated.Refunded)
	assert.Equal(t, int64(1000), f.balance(t))

	u, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, u.TotalSpentCents)
	assert.Zero(t, u.ProfitContributionCents)

	_, err = f.lifecycle.AdminOverride(context.Background(), o.ID, model.OrderStatusCancelled, true)
	require.ErrorIs(t, err, model.ErrDuplicateRefund)
	assert.Equal(t, int64(1000), f.balance(t))

	_, err = f.lifecycle.Resync(context.Background(), o.ID)
	require.ErrorIs(t, err, model.ErrInvalidStatus)
}

func TestAdminOverride_InvalidStatus(t *testing.T) {
	f := newFixture(t, 1000)
	o := f.place(t, "555")

	_, err := f.lifecycle.AdminOverride(context.Background(), o.ID, model.OrderStatus("DONE"), false)
	require.ErrorIs(t, err, model.ErrInvalidStatus)
}

func TestRequestRefill(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	o := f.place(t, "555")

	_, err := f.lifecycle.RequestRefill(ctx, "u1", o.ID)
	require.ErrorIs(t, err, model.ErrRefillNotAllowed)

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "Completed"}, nil).Once()
	_, err = f.lifecycle.SyncStatus(ctx, o.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.RequestRefill(ctx, "u2", o.ID)
	require.ErrorIs(t, err, model.ErrOrderNotFound)

	f.provider.On("Refill", mock.Anything, testProvider, "555").Return(&provider.RefillResult{RefillID: "r-1"}, nil).Once()

	refilled, err := f.lifecycle.RequestRefill(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusRequested, refilled.RefillStatus)
	assert.Equal(t, "r-1", refilled.ProviderRefillID)

	_, err = f.lifecycle.RequestRefill(ctx, "u1", o.ID)
	require.ErrorIs(t, err, model.ErrRefillNotAllowed)
	f.provider.AssertNumberOfCalls(t, "Refill", 1)
}

func TestSyncAllActive_Report(t *testing.T) {
	f := newFixture(t, 2000)
	first := f.place(t, "555")
	second := f.place(t, "556")
	third := f.place(t, "557")

	_, err := f.lifecycle.AdminOverride(context.Background(), third.ID, model.OrderStatusCompleted, false)
	require.NoError(t, err)

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "In progress"}, nil).Once()
	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "556").
		Return(nil, &provider.RejectedError{Action: "status", Message: "Incorrect order ID"}).Once()

	report, err := f.lifecycle.SyncAllActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Checked: 2, Updated: 1, Failed: 1}, report)

	stored, err := f.store.GetOrder(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusInProgress, stored.Status)

	stored, err = f.store.GetOrder(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
}

func TestMapStatus(t *testing.T) {
	tests := map[string]model.OrderStatus{
		"Pending":        model.OrderStatusPending,
		"In progress":    model.OrderStatusInProgress,
		" IN  PROGRESS ": model.OrderStatusInProgress,
		"Processing":     model.OrderStatusProcessing,
		"Partial":        model.OrderStatusPartial,
		"Completed":      model.OrderStatusCompleted,
		"Canceled":       model.OrderStatusCancelled,
		"Cancelled":      model.OrderStatusCancelled,
		"failed":         model.OrderStatusFailed,
	}

	for in, want := range tests {
		got, ok := MapStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := MapStatus("Refunded")
	assert.False(t, ok)
}

func TestPlaceOrder_ContextCancelledWhileWaitingForLock(t *testing.T) {
	f := newFixture(t, 1000)

	unlock, err := f.lifecycle.locks.Lock(context.Background(), "u1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.lifecycle.PlaceOrder(ctx, "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	f.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything)
}

func TestQuote_DripfeedQuantityBounds(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    int64
		wantErr error
	}{
		{
			name: "runs within max",
			req:  Request{ServiceID: 2, Link: testLink, Quantity: 100, Runs: 10, Interval: 5},
			want: 1000,
		},
		{
			name:    "product above service max",
			req:     Request{ServiceID: 2, Link: testLink, Quantity: 500, Runs: 3, Interval: 5},
			wantErr: model.ErrQuantityOutOfRange,
		},
		{
			name:    "runs above limit",
			req:     Request{ServiceID: 2, Link: testLink, Quantity: 50, Runs: MaxRuns + 1, Interval: 5},
			wantErr: model.ErrQuantityOutOfRange,
		},
		{
			name:    "product overflows int64",
			req:     Request{ServiceID: 2, Link: testLink, Quantity: 256, Runs: 1<<56 + 1, Interval: 5},
			wantErr: model.ErrQuantityOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)

			q, err := f.lifecycle.Quote(context.Background(), "u1", tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Quote.Quantity)
		})
	}
}

func TestBilledQuantity_UnboundedService(t *testing.T) {
	svc := model.Service{ID: 9, Min: 1, Dripfeed: true}

	got, err := billedQuantity(Request{Quantity: 1000, Runs: 3}, svc)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got)

	_, err = billedQuantity(Request{Quantity: MaxBilledQuantity/2 + 1, Runs: 2}, svc)
	require.ErrorIs(t, err, model.ErrQuantityOutOfRange)

	_, err = billedQuantity(Request{Quantity: math.MaxInt64}, svc)
	require.ErrorIs(t, err, model.ErrQuantityOutOfRange)
}

func TestPlaceOrder_CouponTakenWhileProviderCallInFlight(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.store.CreateUser(ctx, model.User{ID: "u2"})
	require.NoError(t, err)
	_, err = f.store.ApplyAdjustment(ctx, model.Adjustment{UserID: "u2", DeltaCents: 1000})
	require.NoError(t, err)

	require.NoError(t, f.store.CreateCoupon(ctx, model.Coupon{
		Code:       "LAST",
		Type:       model.DiscountPercentage,
		Value:      decimal.NewFromInt(10),
		UsageLimit: 1,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
	}))

	var otherErr error
	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, otherErr = f.lifecycle.PlaceOrder(ctx, "u2", Request{
				ServiceID: 1, Link: testLink, Quantity: 1000, CouponCode: "LAST",
			})
		}).
		Return(&provider.PlacedOrder{ProviderID: testProvider, ProviderOrderID: "555"}, nil).Once()

	p, err := f.lifecycle.PlaceOrder(ctx, "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000, CouponCode: "LAST"})
	require.NoError(t, err)
	require.ErrorIs(t, otherErr, model.ErrCouponInvalid)
	f.provider.AssertNumberOfCalls(t, "AddOrder", 1)

	assert.Equal(t, int64(450), p.Order.ChargeCents)
	assert.Equal(t, "LAST", p.Order.CouponCode)
	assert.Len(t, f.orders(t), 1)

	c, err := f.store.GetCoupon(ctx, "LAST")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsedCount)
}

func TestPlaceOrder_ProviderFailureReleasesCoupon(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	require.NoError(t, f.store.CreateCoupon(ctx, model.Coupon{
		Code:       "LAST",
		Type:       model.DiscountFixed,
		Value:      decimal.NewFromInt(1),
		UsageLimit: 1,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
	}))

	f.provider.On("AddOrder", mock.Anything, mock.Anything).
		Return(nil, &provider.TransportError{Action: "add", Err: context.DeadlineExceeded}).Once()

	_, err := f.lifecycle.PlaceOrder(ctx, "u1", Request{ServiceID: 1, Link: testLink, Quantity: 1000, CouponCode: "LAST"})
	require.ErrorIs(t, err, provider.ErrTransport)

	c, err := f.store.GetCoupon(ctx, "LAST")
	require.NoError(t, err)
	assert.Zero(t, c.UsedCount)
	assert.Equal(t, int64(1000), f.balance(t))
}

func TestResync_AfterTerminalOverride(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	o := f.place(t, "555")

	_, err := f.lifecycle.AdminOverride(ctx, o.ID, model.OrderStatusCancelled, false)
	require.NoError(t, err)

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "In progress"}, nil).Once()

	res, err := f.lifecycle.Resync(ctx, o.ID)
	require.NoError(t, err)
	f.provider.AssertExpectations(t)

	require.True(t, res.Updated)
	assert.False(t, res.Skipped)
	assert.Equal(t, model.OrderStatusInProgress, res.Order.Status)
	assert.False(t, res.Order.Overridden)
	assert.Equal(t, int64(500), f.balance(t))
}

func TestResync_ProviderUnavailableKeepsOverride(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	o := f.place(t, "555")

	_, err := f.lifecycle.AdminOverride(ctx, o.ID, model.OrderStatusCancelled, false)
	require.NoError(t, err)

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: provider.SimulatedStatus, Simulated: true}, nil).Once()

	res, err := f.lifecycle.Resync(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, res.Updated)

	stored, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.True(t, stored.Overridden)
}

func TestSyncAllActive_ReconcilesRefills(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	o := f.place(t, "555")

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, "555").
		Return(&provider.OrderStatus{Status: "Completed"}, nil).Once()
	_, err := f.lifecycle.SyncStatus(ctx, o.ID)
	require.NoError(t, err)

	f.provider.On("Refill", mock.Anything, testProvider, "555").
		Return(&provider.RefillResult{RefillID: "r-1"}, nil).Once()
	_, err = f.lifecycle.RequestRefill(ctx, "u1", o.ID)
	require.NoError(t, err)

	f.provider.On("RefillStatus", mock.Anything, testProvider, "r-1").
		Return(&provider.RefillState{Status: "In progress"}, nil).Once()

	report, err := f.lifecycle.SyncAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Refills: 1}, report)

	stored, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusProcessing, stored.RefillStatus)

	f.provider.On("RefillStatus", mock.Anything, testProvider, "r-1").
		Return(&provider.RefillState{Status: "Completed"}, nil).Once()

	report, err = f.lifecycle.SyncAllActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Refills: 1}, report)

	stored, err = f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusCompleted, stored.RefillStatus)
	assert.Equal(t, "r-1", stored.ProviderRefillID)

	f.provider.On("Refill", mock.Anything, testProvider, "555").
		Return(&provider.RefillResult{RefillID: "r-2"}, nil).Once()

	again, err := f.lifecycle.RequestRefill(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusRequested, again.RefillStatus)
	assert.Equal(t, "r-2", again.ProviderRefillID)
	f.provider.AssertExpectations(t)
}

func TestSyncAllActive_PagesThroughAllOrders(t *testing.T) {
	f := newFixture(t, 5000)
	f.lifecycle.cfg.SyncBatchSize = 2

	for _, id := range []string{"501", "502", "503", "504", "505"} {
		f.place(t, id)
	}

	f.provider.On("StatusOrSimulated", mock.Anything, testProvider, mock.Anything).
		Return(&provider.OrderStatus{Status: "In progress"}, nil).Times(5)

	report, err := f.lifecycle.SyncAllActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Checked: 5, Updated: 5}, report)
	f.provider.AssertExpectations(t)

	for _, o := range f.orders(t) {
		assert.Equal(t, model.OrderStatusInProgress, o.Status, o.ProviderOrderID)
	}
}

func TestMapRefillStatus(t *testing.T) {
	tests := map[string]model.RefillStatus{
		"Pending":     model.RefillStatusProcessing,
		"In progress": model.RefillStatusProcessing,
		"Completed":   model.RefillStatusCompleted,
		"Rejected":    model.RefillStatusRejected,
		"Canceled":    model.RefillStatusRejected,
	}

	for in, want := range tests {
		got, ok := MapRefillStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := MapRefillStatus("Queued")
	assert.False(t, ok)
}
