package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/pricing"
)

type userResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email,omitempty"`
	Tier       string  `json:"tier"`
	Status     string  `json:"status"`
	Balance    float64 `json:"balance"`
	TotalSpent float64 `json:"total_spent"`
	CreatedAt  string  `json:"created_at"`
}

func newUserResponse(u model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Tier:       string(u.Tier),
		Status:     string(u.Status),
		Balance:    model.CentsToFloat(u.BalanceCents),
		TotalSpent: model.CentsToFloat(u.TotalSpentCents),
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

type adminUserResponse struct {
	userResponse
	ProfitContribution float64 `json:"profit_contribution"`
}

type serviceResponse struct {
	Service     int64           `json:"service"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	Min         int64           `json:"min"`
	Max         int64           `json:"max"`
	Dripfeed    bool            `json:"dripfeed"`
	Refill      bool            `json:"refill"`
	Cancel      bool            `json:"cancel"`
}

func newServiceResponse(s model.Service) serviceResponse {
	return serviceResponse{
		Service:     s.ID,
		Name:        s.Name,
		Category:    s.Category,
		Type:        s.Type,
		Description: s.Description,
		Rate:        s.SellRate,
		Min:         s.Min,
		Max:         s.Max,
		Dripfeed:    s.Dripfeed,
		Refill:      s.Refill,
		Cancel:      s.Cancel,
	}
}

type quoteResponse struct {
	Service       int64           `json:"service"`
	Quantity      int64           `json:"quantity"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	Gross         float64         `json:"gross"`
	Discount      float64         `json:"discount"`
	Charge        float64         `json:"charge"`
	Coupon        string          `json:"coupon,omitempty"`
}

func newQuoteResponse(q pricing.Quote) quoteResponse {
	return quoteResponse{
		Service:       q.ServiceID,
		Quantity:      q.Quantity,
		MarkupPercent: q.EffectiveMarkup,
		Gross:         model.CentsToFloat(q.GrossCents),
		Discount:      model.CentsToFloat(q.DiscountCents),
		Charge:        model.CentsToFloat(q.ChargeCents),
		Coupon:        q.CouponCode,
	}
}

type orderResponse struct {
	ID           string  `json:"id"`
	Service      int64   `json:"service"`
	ServiceName  string  `json:"service_name"`
	Category     string  `json:"category,omitempty"`
	Link         string  `json:"link"`
	Quantity     int64   `json:"quantity"`
	Runs         int64   `json:"runs,omitempty"`
	Interval     int64   `json:"interval,omitempty"`
	Charge       float64 `json:"charge"`
	Status       string  `json:"status"`
	StartCount   *int64  `json:"start_count,omitempty"`
	Remains      *int64  `json:"remains,omitempty"`
	CanRefill    bool    `json:"can_refill"`
	RefillStatus string  `json:"refill_status"`
	Coupon       string  `json:"coupon,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		Service:      o.ServiceID,
		ServiceName:  o.ServiceName,
		Category:     o.Category,
		Link:         o.Link,
		Quantity:     o.Quantity,
		Runs:         o.Runs,
		Interval:     o.Interval,
		Charge:       model.CentsToFloat(o.ChargeCents),
		Status:       string(o.Status),
		StartCount:   o.StartCount,
		Remains:      o.Remains,
		CanRefill:    o.CanRefill,
		RefillStatus: string(o.RefillStatus),
		Coupon:       o.CouponCode,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

type adminOrderResponse struct {
	orderResponse
	UserID          string  `json:"user_id"`
	ProviderID      string  `json:"provider_id,omitempty"`
	ProviderOrderID string  `json:"provider_order_id"`
	ProviderCost    float64 `json:"provider_cost"`
	Profit          float64 `json:"profit"`
	Overridden      bool    `json:"overridden"`
	Refunded        bool    `json:"refunded"`
}

func newAdminOrderResponse(o model.Order) adminOrderResponse {
	return adminOrderResponse{
		orderResponse:   newOrderResponse(o),
		UserID:          o.UserID,
		ProviderID:      o.ProviderID,
		ProviderOrderID: o.ProviderOrderID,
		ProviderCost:    model.CentsToFloat(o.ProviderCostCents),
		Profit:          model.CentsToFloat(o.ProfitCents),
		Overridden:      o.Overridden,
		Refunded:        o.Refunded,
	}
}

type placementResponse struct {
	Order   orderResponse `json:"order"`
	Quote   quoteResponse `json:"quote"`
	Balance float64       `json:"balance"`
}

type transactionResponse struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Amount       float64 `json:"amount"`
	BalanceAfter float64 `json:"balance_after"`
	OrderID      string  `json:"order_id,omitempty"`
	Method       string  `json:"method,omitempty"`
	Note         string  `json:"note,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func newTransactionResponse(t model.Transaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		Kind:         string(t.Kind),
		Amount:       model.CentsToFloat(t.AmountCents),
		BalanceAfter: model.CentsToFloat(t.BalanceAfterCents),
		OrderID:      t.OrderID,
		Method:       t.Method,
		Note:         t.Note,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
	}
}

type providerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	HasKey    bool   `json:"has_key"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at"`
}

func newProviderResponse(p model.Provider) providerResponse {
	return providerResponse{
		ID:        p.ID,
		Name:      p.Name,
		BaseURL:   p.BaseURL,
		HasKey:    p.Key != "",
		Status:    string(p.Status),
		Priority:  p.Priority,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

type couponResponse struct {
	Code       string          `json:"code"`
	Type       string          `json:"type"`
	Value      decimal.Decimal `json:"value"`
	UsageLimit int64           `json:"usage_limit"`
	UsedCount  int64           `json:"used_count"`
	ExpiresAt  string          `json:"expires_at"`
	Active     bool            `json:"active"`
	Status     string          `json:"status"`
}

func newCouponResponse(c model.Coupon, now time.Time) couponResponse {
	return couponResponse{
		Code:       c.Code,
		Type:       string(c.Type),
		Value:      c.Value,
		UsageLimit: c.UsageLimit,
		UsedCount:  c.UsedCount,
		ExpiresAt:  c.ExpiresAt.Format(time.RFC3339),
		Active:     c.Active,
		Status:     string(c.StatusAt(now)),
	}
}

type settingsResponse struct {
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

type statsResponse struct {
	Users        int64   `json:"users"`
	Orders       int64   `json:"orders"`
	ActiveOrders int64   `json:"active_orders"`
	Revenue      float64 `json:"revenue"`
	Profit       float64 `json:"profit"`
	Balances     float64 `json:"balances"`
}
