package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToCents_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"5", 500},
		{"1.005", 101},
		{"1.004", 100},
		{"0.125", 13},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToCents(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestCouponStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := Coupon{
		Code:       "SPRING",
		Type:       DiscountPercentage,
		Value:      decimal.NewFromInt(10),
		UsageLimit: 5,
		UsedCount:  1,
		ExpiresAt:  now.Add(24 * time.Hour),
		Active:     true,
	}

	assert.Equal(t, CouponStatusActive, base.StatusAt(now))

	expired := base
	expired.ExpiresAt = now.Add(-time.Minute)
	assert.Equal(t, CouponStatusExpired, expired.StatusAt(now))

	exhausted := base
	exhausted.UsedCount = 5
	assert.Equal(t, CouponStatusExhausted, exhausted.StatusAt(now))

	inactive := base
	inactive.Active = false
	assert.Equal(t, CouponStatusInactive, inactive.StatusAt(now))
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range ActiveOrderStatuses {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusFailed.IsTerminal())
	assert.False(t, OrderStatus("DONE").Valid())
}

func TestNormalizeCouponCode(t *testing.T) {
	assert.Equal(t, "WELCOME10", NormalizeCouponCode("  welcome10 "))
}
