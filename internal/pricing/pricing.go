// Package pricing рассчитывает стоимость заказа, себестоимость и прибыль.
//
// Ставки задаются за 1000 единиц в decimal.Decimal, результаты в целых центах
// с округлением half-up.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// Config задаёт скидки ценовых групп в процентных пунктах наценки.
type Config struct {
	VIPDiscountPoints      decimal.Decimal
	ResellerDiscountPoints decimal.Decimal
}

// DefaultConfig возвращает скидки групп по умолчанию: VIP −10, Reseller −15 пунктов.
func DefaultConfig() Config {
	return Config{
		VIPDiscountPoints:      decimal.NewFromInt(10),
		ResellerDiscountPoints: decimal.NewFromInt(15),
	}
}

// Engine рассчитывает цены.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine создаёт калькулятор цен.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// Request содержит входные данные расчёта.
type Request struct {
	Service       model.Service
	Quantity      int64
	Tier          model.Tier
	MarkupPercent decimal.Decimal
	Coupon        *model.Coupon
}

// Quote содержит результат расчёта. Все суммы в центах.
type Quote struct {
	ServiceID         int64
	Quantity          int64
	EffectiveMarkup   decimal.Decimal
	GrossCents        int64
	DiscountCents     int64
	ChargeCents       int64
	ProviderCostCents int64
	ProfitCents       int64
	CouponCode        string
	NegativeMargin    bool
}

// EffectiveMarkup уменьшает глобальную наценку на скидку группы, не опускаясь ниже нуля.
func (e *Engine) EffectiveMarkup(global decimal.Decimal, tier model.Tier) decimal.Decimal {
	markup := global
	switch tier {
	case model.TierVIP:
		markup = markup.Sub(e.cfg.VIPDiscountPoints)
	case model.TierReseller:
		markup = markup.Sub(e.cfg.ResellerDiscountPoints)
	}

	if markup.IsNegative() {
		return decimal.Zero
	}
	return markup
}

// Quote рассчитывает стоимость заказа. Купон проверяется, но не расходуется.
func (e *Engine) Quote(req Request) (Quote, error) {
	if req.Quantity <= 0 {
		return Quote{}, fmt.Errorf("%w: %d", model.ErrQuantityOutOfRange, req.Quantity)
	}

	qty := decimal.NewFromInt(req.Quantity)
	markup := e.EffectiveMarkup(req.MarkupPercent, req.Tier)

	unitRate := req.Service.SellRate.Mul(decimal.NewFromInt(1).Add(markup.Div(hundred)))
	gross := model.ToCents(unitRate.Mul(qty).Div(thousand))
	cost := model.ToCents(req.Service.ProviderRate.Mul(qty).Div(thousand))

	q := Quote{
		ServiceID:         req.Service.ID,
		Quantity:          req.Quantity,
		EffectiveMarkup:   markup,
		GrossCents:        gross,
		ChargeCents:       gross,
		ProviderCostCents: cost,
	}

	if req.Coupon != nil {
		if err := e.ValidateCoupon(req.Coupon); err != nil {
			return Quote{}, err
		}
		q.CouponCode = req.Coupon.Code
		q.DiscountCents = discount(*req.Coupon, gross)
		q.ChargeCents = gross - q.DiscountCents
	}

	q.ProfitCents = q.ChargeCents - q.ProviderCostCents
	q.NegativeMargin = q.ProfitCents < 0

	return q, nil
}

// ValidateCoupon проверяет, что купон активен, не истёк и не исчерпан.
func (e *Engine) ValidateCoupon(c *model.Coupon) error {
	if status := c.StatusAt(e.now()); status != model.CouponStatusActive {
		return fmt.Errorf("%w: %s is %s", model.ErrCouponInvalid, c.Code, status)
	}
	return nil
}

// discount возвращает скидку в центах, не превышающую gross.
func discount(c model.Coupon, gross int64) int64 {
	var d int64
	switch c.Type {
	case model.DiscountPercentage:
		d = model.ToCents(model.FromCents(gross).Mul(c.Value).Div(hundred))
	case model.DiscountFixed:
		d = model.ToCents(c.Value)
	}

	if d < 0 {
		return 0
	}
	if d > gross {
		return gross
	}
	return d
}
