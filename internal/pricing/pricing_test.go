package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

func testService(sell, providerRate string) model.Service {
	return model.Service{
		ID:           1,
		Name:         "Followers",
		ProviderRate: decimal.RequireFromString(providerRate),
		SellRate:     decimal.RequireFromString(sell),
		Min:          10,
		Max:          100000,
	}
}

func fixedEngine(now time.Time) *Engine {
	e := NewEngine(DefaultConfig())
	e.now = func() time.Time { return now }
	return e
}

func TestQuote_StandardNoMarkup(t *testing.T) {
	e := NewEngine(DefaultConfig())

	q, err := e.Quote(Request{
		Service:  testService("1.00", "0.80"),
		Quantity: 5000,
		Tier:     model.TierStandard,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), q.ChargeCents)
	assert.Equal(t, int64(400), q.ProviderCostCents)
	assert.Equal(t, int64(100), q.ProfitCents)
	assert.False(t, q.NegativeMargin)
}

func TestQuote_RoundsHalfUp(t *testing.T) {
	e := NewEngine(DefaultConfig())

	q, err := e.Quote(Request{Service: testService("0.125", "0.1"), Quantity: 100})
	require.NoError(t, err)

	// 0.125 * 100 / 1000 = 0.0125 -> 0.01
	assert.Equal(t, int64(1), q.ChargeCents)

	q, err = e.Quote(Request{Service: testService("0.125", "0.1"), Quantity: 1000})
	require.NoError(t, err)

	// 0.125 -> 0.13
	assert.Equal(t, int64(13), q.ChargeCents)
	assert.Equal(t, int64(10), q.ProviderCostCents)
}

func TestQuote_ChargeMatchesFormula(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		sell := decimal.New(rnd.Int63n(100000)+1, -4)
		providerRate := sell.Mul(decimal.RequireFromString("0.8"))
		qty := rnd.Int63n(1000000) + 1

		q, err := e.Quote(Request{
			Service:  model.Service{ID: 1, SellRate: sell, ProviderRate: providerRate},
			Quantity: qty,
		})
		require.NoError(t, err)

		want := sell.Mul(decimal.NewFromInt(qty)).Div(decimal.NewFromInt(1000)).Round(2)
		assert.Equal(t, want.Mul(decimal.NewFromInt(100)).IntPart(), q.ChargeCents, "sell=%s qty=%d", sell, qty)
		assert.Equal(t, q.ChargeCents-q.ProviderCostCents, q.ProfitCents)
	}
}

func TestEffectiveMarkup(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name   string
		global string
		tier   model.Tier
		want   string
	}{
		{name: "standard keeps global", global: "20", tier: model.TierStandard, want: "20"},
		{name: "vip minus ten", global: "20", tier: model.TierVIP, want: "10"},
		{name: "reseller minus fifteen", global: "20", tier: model.TierReseller, want: "5"},
		{name: "floored at zero", global: "5", tier: model.TierVIP, want: "0"},
		{name: "zero stays zero", global: "0", tier: model.TierReseller, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EffectiveMarkup(decimal.RequireFromString(tt.global), tt.tier)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestQuote_TierMarkupApplied(t *testing.T) {
	e := NewEngine(DefaultConfig())

	standard, err := e.Quote(Request{
		Service:       testService("1.00", "0.80"),
		Quantity:      1000,
		Tier:          model.TierStandard,
		MarkupPercent: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	vip, err := e.Quote(Request{
		Service:       testService("1.00", "0.80"),
		Quantity:      1000,
		Tier:          model.TierVIP,
		MarkupPercent: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(120), standard.ChargeCents)
	assert.Equal(t, int64(110), vip.ChargeCents)
	assert.Equal(t, int64(80), vip.ProviderCostCents)
}

func TestQuote_Coupons(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	e := fixedEngine(now)

	valid := func(typ model.DiscountType, value string) *model.Coupon {
		return &model.Coupon{
			Code:       "PROMO",
			Type:       typ,
			Value:      decimal.RequireFromString(value),
			UsageLimit: 10,
			UsedCount:  3,
			ExpiresAt:  now.Add(time.Hour),
			Active:     true,
		}
	}

	t.Run("percentage", func(t *testing.T) {
		q, err := e.Quote(Request{Service: testService("1.00", "0.80"), Quantity: 5000, Coupon: valid(model.DiscountPercentage, "10")})
		require.NoError(t, err)
		assert.Equal(t, int64(500), q.GrossCents)
		assert.Equal(t, int64(50), q.DiscountCents)
		assert.Equal(t, int64(450), q.ChargeCents)
		assert.Equal(t, int64(50), q.ProfitCents)
		assert.Equal(t, "PROMO", q.CouponCode)
	})

	t.Run("fixed floored at zero", func(t *testing.T) {
		q, err := e.Quote(Request{Service: testService("1.00", "0.80"), Quantity: 5000, Coupon: valid(model.DiscountFixed, "7.00")})
		require.NoError(t, err)
		assert.Equal(t, int64(0), q.ChargeCents)
		assert.Equal(t, int64(-400), q.ProfitCents)
		assert.True(t, q.NegativeMargin)
	})

	t.Run("exhausted", func(t *testing.T) {
		c := valid(model.DiscountPercentage, "10")
		c.UsedCount = c.UsageLimit
		_, err := e.Quote(Request{Service: testService("1.00", "0.80"), Quantity: 5000, Coupon: c})
		assert.ErrorIs(t, err, model.ErrCouponInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		c := valid(model.DiscountFixed, "1")
		c.ExpiresAt = now.Add(-time.Second)
		_, err := e.Quote(Request{Service: testService("1.00", "0.80"), Quantity: 5000, Coupon: c})
		assert.ErrorIs(t, err, model.ErrCouponInvalid)
	})
}

func TestQuote_RejectsNonPositiveQuantity(t *testing.T) {
	e := NewEngine(DefaultConfig())

	_, err := e.Quote(Request{Service: testService("1", "1"), Quantity: 0})
	assert.ErrorIs(t, err, model.ErrQuantityOutOfRange)
}
