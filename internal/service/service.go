// Package service реализует бизнес-логику витрины для HTTP-обработчиков:
// операции пользователя и панели администратора.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/order"
	"github.com/mmeshcher/smm-storefront/internal/provider"
)

// DefaultOrdersLimit ограничивает список заказов в панели администратора.
const DefaultOrdersLimit = 200

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserTier(ctx context.Context, id string, tier model.Tier) error
	SetUserStatus(ctx context.Context, id string, status model.UserStatus) error
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	CreateCoupon(ctx context.Context, c model.Coupon) error
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	SetCouponActive(ctx context.Context, code string, active bool) error
	DeleteCoupon(ctx context.Context, code string) error
	CreateProvider(ctx context.Context, p model.Provider) error
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	UpdateProvider(ctx context.Context, p model.Provider) error
	DeleteProvider(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (*model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) error
	Stats(ctx context.Context) (*model.Stats, error)
}

// Catalog отдаёт продаваемый каталог.
type Catalog interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	Invalidate()
}

// Ledger описывает операции кошелька, доступные через API.
type Ledger interface {
	Balance(ctx context.Context, userID string) (*model.User, error)
	Deposit(ctx context.Context, userID string, amount int64, method string) (*model.User, error)
	Adjust(ctx context.Context, userID string, amount int64, isAdd bool, note string) (*model.User, error)
}

// Orders описывает операции жизненного цикла заказа.
type Orders interface {
	Quote(ctx context.Context, userID string, req order.Request) (*order.Quotation, error)
	PlaceOrder(ctx context.Context, userID string, req order.Request) (*order.Placement, error)
	RequestRefill(ctx context.Context, userID, orderID string) (*model.Order, error)
	AdminOverride(ctx context.Context, orderID string, status model.OrderStatus, refund bool) (*model.Order, error)
	Resync(ctx context.Context, orderID string) (*order.SyncResult, error)
	SyncAllActive(ctx context.Context) (order.SyncReport, error)
}

// ProviderBalance сообщает баланс аккаунта у поставщика.
type ProviderBalance interface {
	BalanceOrSimulated(ctx context.Context) (*provider.BalanceInfo, error)
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo            Repository
	catalog         Catalog
	ledger          Ledger
	orders          Orders
	providerBalance ProviderBalance
	defaultMarkup   decimal.Decimal
	logger          *zap.Logger
	now             func() time.Time
}

// NewService создаёт сервис.
func NewService(repo Repository, catalog Catalog, ledger Ledger, orders Orders, pb ProviderBalance,
	defaultMarkup decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		repo:            repo,
		catalog:         catalog,
		ledger:          ledger,
		orders:          orders,
		providerBalance: pb,
		defaultMarkup:   defaultMarkup,
		logger:          logger,
		now:             time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser создаёт кошелёк для пользователя, подтверждённого сервисом идентификации.
func (s *Service) RegisterUser(ctx context.Context, userID, email string) (*model.User, error) {
	return s.repo.CreateUser(ctx, model.User{
		ID:     userID,
		Email:  strings.TrimSpace(email),
		Tier:   model.TierStandard,
		Status: model.UserStatusActive,
	})
}

// Profile возвращает пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// ListServices возвращает каталог.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.catalog.ListServices(ctx)
}

// QuoteOrder рассчитывает стоимость заказа без его размещения.
func (s *Service) QuoteOrder(ctx context.Context, userID string, req order.Request) (*order.Quotation, error) {
	return s.orders.Quote(ctx, userID, req)
}

// PlaceOrder размещает заказ.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req order.Request) (*order.Placement, error) {
	return s.orders.PlaceOrder(ctx, userID, req)
}

// ListOrders возвращает заказы пользователя.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// RequestRefill запрашивает докрутку заказа пользователя.
func (s *Service) RequestRefill(ctx context.Context, userID, orderID string) (*model.Order, error) {
	return s.orders.RequestRefill(ctx, userID, orderID)
}

// GetBalance возвращает подтверждённый баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	u, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return balanceOf(u), nil
}

// Deposit зачисляет пополнение. Платёжный шлюз не используется: сумма зачисляется сразу.
func (s *Service) Deposit(ctx context.Context, userID string, amount float64, method string) (*model.Balance, error) {
	cents := model.CentsFromFloat(amount)
	if cents <= 0 {
		return nil, fmt.Errorf("%w: deposit %v", model.ErrInvalidAmount, amount)
	}

	u, err := s.ledger.Deposit(ctx, userID, cents, method)
	if err != nil {
		return nil, err
	}
	return balanceOf(u), nil
}

// ListTransactions возвращает журнал операций пользователя.
func (s *Service) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetUserTier меняет ценовую группу пользователя.
func (s *Service) SetUserTier(ctx context.Context, userID string, tier model.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: tier %q", model.ErrInvalidStatus, tier)
	}
	return s.repo.SetUserTier(ctx, userID, tier)
}

// SetUserStatus блокирует или разблокирует пользователя.
func (s *Service) SetUserStatus(ctx context.Context, userID string, status model.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: user status %q", model.ErrInvalidStatus, status)
	}
	return s.repo.SetUserStatus(ctx, userID, status)
}

// AdjustBalance вручную изменяет баланс пользователя.
func (s *Service) AdjustBalance(ctx context.Context, userID string, amount float64, isAdd bool, note string) (*model.Balance, error) {
	u, err := s.ledger.Adjust(ctx, userID, model.CentsFromFloat(amount), isAdd, note)
	if err != nil {
		return nil, err
	}
	return balanceOf(u), nil
}

// ListAllOrders возвращает последние заказы всех пользователей.
func (s *Service) ListAllOrders(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > DefaultOrdersLimit {
		limit = DefaultOrdersLimit
	}
	return s.repo.ListOrders(ctx, limit)
}

// SyncOrders сверяет активные заказы с поставщиком.
func (s *Service) SyncOrders(ctx context.Context) (order.SyncReport, error) {
	return s.orders.SyncAllActive(ctx)
}

// OverrideOrder задаёт статус заказа вручную, при необходимости с возвратом средств.
func (s *Service) OverrideOrder(ctx context.Context, orderID string, status model.OrderStatus, refund bool) (*model.Order, error) {
	return s.orders.AdminOverride(ctx, orderID, status, refund)
}

// ResyncOrder снимает ручной статус и сверяет заказ.
func (s *Service) ResyncOrder(ctx context.Context, orderID string) (*order.SyncResult, error) {
	return s.orders.Resync(ctx, orderID)
}

// ListProviders возвращает настроенных поставщиков.
func (s *Service) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return s.repo.ListProviders(ctx)
}

// CreateProvider добавляет поставщика. Каталог перечитывается при следующем запросе.
func (s *Service) CreateProvider(ctx context.Context, p model.Provider) (*model.Provider, error) {
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = model.ProviderStatusActive
	}

	if err := s.repo.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	s.catalog.Invalidate()

	s.logger.Info("provider created", zap.String("providerID", p.ID), zap.String("name", p.Name))
	return s.repo.GetProvider(ctx, p.ID)
}

// UpdateProvider обновляет поставщика. Пустой ключ означает «не менять».
func (s *Service) UpdateProvider(ctx context.Context, p model.Provider) (*model.Provider, error) {
	old, err := s.repo.GetProvider(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.Key == "" {
		p.Key = old.Key
	}
	if p.Status == "" {
		p.Status = old.Status
	}

	if err := s.repo.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	s.catalog.Invalidate()

	return s.repo.GetProvider(ctx, p.ID)
}

// DeleteProvider удаляет поставщика.
func (s *Service) DeleteProvider(ctx context.Context, id string) error {
	if err := s.repo.DeleteProvider(ctx, id); err != nil {
		return err
	}
	s.catalog.Invalidate()
	return nil
}

// ProviderBalance возвращает баланс аккаунта у активного поставщика.
func (s *Service) ProviderBalance(ctx context.Context) (*provider.BalanceInfo, error) {
	return s.providerBalance.BalanceOrSimulated(ctx)
}

// ListCoupons возвращает купоны.
func (s *Service) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	return s.repo.ListCoupons(ctx)
}

// CreateCoupon создаёт купон.
func (s *Service) CreateCoupon(ctx context.Context, c model.Coupon) (*model.Coupon, error) {
	c.Code = model.NormalizeCouponCode(c.Code)
	if err := s.validateCoupon(c); err != nil {
		return nil, err
	}

	c.UsedCount = 0
	if err := s.repo.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) validateCoupon(c model.Coupon) error {
	switch {
	case c.Code == "":
		return fmt.Errorf("%w: empty code", model.ErrCouponInvalid)
	case c.Type != model.DiscountPercentage && c.Type != model.DiscountFixed:
		return fmt.Errorf("%w: type %q", model.ErrCouponInvalid, c.Type)
	case !c.Value.IsPositive():
		return fmt.Errorf("%w: value must be positive", model.ErrCouponInvalid)
	case c.Type == model.DiscountPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: percentage above 100", model.ErrCouponInvalid)
	case c.UsageLimit <= 0:
		return fmt.Errorf("%w: usage limit must be positive", model.ErrCouponInvalid)
	case !c.ExpiresAt.After(s.now()):
		return fmt.Errorf("%w: already expired", model.ErrCouponInvalid)
	}
	return nil
}

// SetCouponActive включает или выключает купон.
func (s *Service) SetCouponActive(ctx context.Context, code string, active bool) error {
	return s.repo.SetCouponActive(ctx, code, active)
}

// DeleteCoupon удаляет купон.
func (s *Service) DeleteCoupon(ctx context.Context, code string) error {
	return s.repo.DeleteCoupon(ctx, code)
}

// GetSettings возвращает настройки; до первого сохранения действует наценка из конфигурации.
func (s *Service) GetSettings(ctx context.Context) (*model.Settings, error) {
	st, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &model.Settings{MarkupPercent: s.defaultMarkup}, nil
	}
	return st, nil
}

// UpdateSettings сохраняет глобальную наценку.
func (s *Service) UpdateSettings(ctx context.Context, markup decimal.Decimal) (*model.Settings, error) {
	if markup.IsNegative() {
		return nil, fmt.Errorf("%w: markup %s", model.ErrInvalidAmount, markup)
	}

	if err := s.repo.UpdateSettings(ctx, model.Settings{MarkupPercent: markup}); err != nil {
		return nil, err
	}

	s.logger.Info("settings updated", zap.String("markupPercent", markup.String()))
	return s.GetSettings(ctx)
}

// Stats возвращает сводные показатели.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.Stats(ctx)
}

func balanceOf(u *model.User) *model.Balance {
	return &model.Balance{
		Current:    model.CentsToFloat(u.BalanceCents),
		TotalSpent: model.CentsToFloat(u.TotalSpentCents),
	}
}
