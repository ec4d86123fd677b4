package provider

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatedStatus задаёт статус, который подставляется при недоступности поставщика.
const SimulatedStatus = "In progress"

// SimulatedBalance возвращает фиксированный баланс для панелей при недоступности поставщика.
func SimulatedBalance() *BalanceInfo {
	return &BalanceInfo{
		Balance:   decimal.RequireFromString("1250.00"),
		Currency:  "USD",
		Simulated: true,
	}
}

// MockCatalog возвращает небольшой каталог, на котором можно проверить наценку и оформление заказа без сети.
func MockCatalog() []RawService {
	return []RawService{
		{
			Service:     "1",
			Name:        "Instagram Followers",
			Type:        "Default",
			Category:    "Instagram",
			Rate:        "0.90",
			Min:         "100",
			Max:         "10000",
			Description: "Real-looking followers, gradual start.",
			Refill:      true,
			Cancel:      true,
		},
		{
			Service:  "2",
			Name:     "Instagram Likes",
			Type:     "Default",
			Category: "Instagram",
			Rate:     "0.20",
			Min:      "50",
			Max:      "50000",
			Dripfeed: true,
		},
		{
			Service:  "3",
			Name:     "YouTube Views",
			Type:     "Default",
			Category: "YouTube",
			Rate:     "1.10",
			Min:      "500",
			Max:      "1000000",
			Refill:   true,
		},
	}
}

// BalanceOrSimulated возвращает баланс поставщика, а при сетевом сбое имитированный.
// Явный отказ поставщика возвращается как ошибка.
func (c *Client) BalanceOrSimulated(ctx context.Context) (*BalanceInfo, error) {
	b, err := c.Balance(ctx)
	if err == nil {
		return b, nil
	}
	if !IsTransport(err) {
		return nil, err
	}

	c.logger.Warn("provider balance unavailable, returning simulated balance", zap.Error(err))
	return SimulatedBalance(), nil
}

// ServicesOrMock возвращает каталог поставщика, а при сетевом сбое MockCatalog.
// Второе значение равно true, если каталог имитированный.
func (c *Client) ServicesOrMock(ctx context.Context) ([]RawService, bool, error) {
	services, err := c.Services(ctx)
	if err == nil {
		return services, false, nil
	}
	if !IsTransport(err) {
		return nil, false, err
	}

	c.logger.Warn("provider catalog unavailable, returning mock catalog", zap.Error(err))
	return MockCatalog(), true, nil
}

// StatusOrSimulated возвращает статус заказа, а при сетевом сбое имитированный
// статус "In progress" без счётчиков.
func (c *Client) StatusOrSimulated(ctx context.Context, providerID, providerOrderID string) (*OrderStatus, error) {
	st, err := c.Status(ctx, providerID, providerOrderID)
	if err == nil {
		return st, nil
	}
	if !IsTransport(err) {
		return nil, err
	}

	c.logger.Warn("provider status unavailable, returning simulated status",
		zap.String("providerID", providerID),
		zap.String("providerOrderID", providerOrderID),
		zap.Error(err))
	return &OrderStatus{Status: SimulatedStatus, Simulated: true}, nil
}
