// Package model содержит доменные сущности витрины SMM-услуг.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tier определяет ценовую группу пользователя.
type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierVIP      Tier = "VIP"
	TierReseller Tier = "RESELLER"
)

// Valid сообщает, является ли значение известной ценовой группой.
func (t Tier) Valid() bool {
	switch t {
	case TierStandard, TierVIP, TierReseller:
		return true
	}
	return false
}

// UserStatus описывает состояние учётной записи.
type UserStatus string

const (
	UserStatusActive UserStatus = "ACTIVE"
	UserStatusBanned UserStatus = "BANNED"
)

// Valid сообщает, является ли значение известным статусом пользователя.
func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusBanned
}

// User представляет пользователя и его кошелёк. Все суммы хранятся в центах.
type User struct {
	ID                      string
	Email                   string
	Tier                    Tier
	Status                  UserStatus
	BalanceCents            int64
	TotalSpentCents         int64
	ProfitContributionCents int64
	CreatedAt               time.Time
}

// Service описывает позицию каталога после применения наценки.
type Service struct {
	ID           int64
	Name         string
	Category     string
	Type         string
	Description  string
	ProviderRate decimal.Decimal
	SellRate     decimal.Decimal
	Min          int64
	Max          int64
	Dripfeed     bool
	Refill       bool
	Cancel       bool
}

// OrderStatus описывает статус выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusPartial    OrderStatus = "PARTIAL"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

// ActiveOrderStatuses перечисляет статусы, требующие сверки с поставщиком.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusInProgress,
	OrderStatusPartial,
}

// Valid сообщает, является ли значение известным статусом заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusInProgress, OrderStatusPartial,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// IsTerminal сообщает, что заказ больше не меняется при сверке.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusFailed
}

// RefillStatus описывает состояние запроса на докрутку.
type RefillStatus string

const (
	RefillStatusNone       RefillStatus = "NONE"
	RefillStatusRequested  RefillStatus = "REQUESTED"
	RefillStatusProcessing RefillStatus = "PROCESSING"
	RefillStatusCompleted  RefillStatus = "COMPLETED"
	RefillStatusRejected   RefillStatus = "REJECTED"
)

// InFlight сообщает, что докрутка уже запрошена и ещё не завершена.
func (s RefillStatus) InFlight() bool {
	return s == RefillStatusRequested || s == RefillStatusProcessing
}

// Order описывает заказ пользователя, переданный поставщику.
type Order struct {
	ID                string
	UserID            string
	ServiceID         int64
	ServiceName       string
	Category          string
	Link              string
	Quantity          int64
	Runs              int64
	Interval          int64
	ChargeCents       int64
	ProviderCostCents int64
	ProfitCents       int64
	Status            OrderStatus
	StartCount        *int64
	Remains           *int64
	ProviderID        string
	ProviderOrderID   string
	CanRefill         bool
	RefillStatus      RefillStatus
	ProviderRefillID  string
	CouponCode        string
	Overridden        bool
	Refunded          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Progress содержит данные поставщика о ходе выполнения заказа.
type Progress struct {
	Status     OrderStatus
	StartCount *int64
	Remains    *int64
}

// DiscountType определяет способ расчёта скидки купона.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// CouponStatus вычисляется из состояния купона и текущей даты.
type CouponStatus string

const (
	CouponStatusActive    CouponStatus = "ACTIVE"
	CouponStatusInactive  CouponStatus = "INACTIVE"
	CouponStatusExpired   CouponStatus = "EXPIRED"
	CouponStatusExhausted CouponStatus = "EXHAUSTED"
)

// Coupon описывает промокод. Для FIXED значение задаётся в валюте, для PERCENTAGE в процентах.
type Coupon struct {
	Code       string
	Type       DiscountType
	Value      decimal.Decimal
	UsageLimit int64
	UsedCount  int64
	ExpiresAt  time.Time
	Active     bool
	CreatedAt  time.Time
}

// StatusAt возвращает вычисляемый статус купона на момент now.
func (c Coupon) StatusAt(now time.Time) CouponStatus {
	switch {
	case !c.Active:
		return CouponStatusInactive
	case now.After(c.ExpiresAt):
		return CouponStatusExpired
	case c.UsedCount >= c.UsageLimit:
		return CouponStatusExhausted
	}
	return CouponStatusActive
}

// NormalizeCouponCode приводит код купона к каноническому виду.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ProviderStatus описывает доступность поставщика.
type ProviderStatus string

const (
	ProviderStatusActive   ProviderStatus = "ACTIVE"
	ProviderStatusInactive ProviderStatus = "INACTIVE"
)

// Provider описывает настроенного администратором поставщика услуг.
type Provider struct {
	ID        string
	Name      string
	BaseURL   string
	Key       string
	Status    ProviderStatus
	Priority  int
	CreatedAt time.Time
}

// TransactionKind определяет тип операции по кошельку.
type TransactionKind string

const (
	TransactionDeposit    TransactionKind = "DEPOSIT"
	TransactionOrder      TransactionKind = "ORDER"
	TransactionDebit      TransactionKind = "DEBIT"
	TransactionRefund     TransactionKind = "REFUND"
	TransactionAdjustment TransactionKind = "ADJUSTMENT"
)

// Transaction описывает запись журнала операций по кошельку. AmountCents имеет знак.
type Transaction struct {
	ID                string
	UserID            string
	Kind              TransactionKind
	AmountCents       int64
	BalanceAfterCents int64
	OrderID           string
	Method            string
	Note              string
	CreatedAt         time.Time
}

// Settings содержит настройки витрины, изменяемые администратором.
type Settings struct {
	MarkupPercent decimal.Decimal
	UpdatedAt     time.Time
}

// Balance содержит подтверждённый сервером баланс пользователя.
type Balance struct {
	Current    float64 `json:"current"`
	TotalSpent float64 `json:"total_spent"`
}

// Stats содержит сводные показатели для панели администратора.
type Stats struct {
	Users         int64
	Orders        int64
	ActiveOrders  int64
	RevenueCents  int64
	ProfitCents   int64
	BalancesCents int64
}
