package provider

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number принимает числовое поле ответа как JSON-число или как строку.
type Number string

// UnmarshalJSON реализует json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(v))
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Number(v.String())
	return nil
}

// Int64 возвращает целое значение; дробная часть отбрасывается.
func (n Number) Int64() (int64, bool) {
	if n == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v, true
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

// Decimal возвращает десятичное значение или ноль, если поле пустое или некорректное.
func (n Number) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Flag принимает логическое поле как true/false, 1/0 или их строковые формы.
type Flag bool

// UnmarshalJSON реализует json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch strings.Trim(strings.ToLower(strings.TrimSpace(string(b))), `"`) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// RawService описывает позицию каталога в том виде, в котором её отдаёт поставщик.
type RawService struct {
	Service     Number `json:"service"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Rate        Number `json:"rate"`
	Min         Number `json:"min"`
	Max         Number `json:"max"`
	Description string `json:"description"`
	Dripfeed    Flag   `json:"dripfeed"`
	Refill      Flag   `json:"refill"`
	Cancel      Flag   `json:"cancel"`
}

// BalanceInfo содержит баланс аккаунта у поставщика.
type BalanceInfo struct {
	Balance   decimal.Decimal
	Currency  string
	Simulated bool
}

// OrderRequest содержит параметры действия add.
type OrderRequest struct {
	ServiceID int64
	Link      string
	Quantity  int64
	Runs      int64
	Interval  int64
}

// PlacedOrder содержит результат успешного действия add. ProviderID указывает
// поставщика, принявшего заказ.
type PlacedOrder struct {
	ProviderID      string
	ProviderOrderID string
	ProviderCharge  decimal.Decimal
}

// OrderStatus содержит ответ на действие status. Счётчики равны nil, если поставщик их не прислал.
type OrderStatus struct {
	Status     string
	StartCount *int64
	Remains    *int64
	Charge     decimal.Decimal
	Currency   string
	Simulated  bool
}

// RefillResult содержит результат действия refill.
type RefillResult struct {
	RefillID string
}

// RefillState содержит ответ на действие refill_status.
type RefillState struct {
	Status string
}

type balanceResponse struct {
	Balance  Number `json:"balance"`
	Currency string `json:"currency"`
}

type addResponse struct {
	Order  Number `json:"order"`
	Charge Number `json:"charge"`
}

type statusResponse struct {
	Status     string `json:"status"`
	StartCount Number `json:"start_count"`
	Remains    Number `json:"remains"`
	Charge     Number `json:"charge"`
	Currency   string `json:"currency"`
}

type refillResponse struct {
	Refill Number `json:"refill"`
}

type refillStatusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
