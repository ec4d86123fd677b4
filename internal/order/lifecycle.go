// Package order управляет жизненным циклом заказа: размещение у поставщика,
// списание, сверка статусов, докрутка и ручные решения администратора.
//
// Блокировки берутся в фиксированном порядке: сначала блокировка размещения
// пользователя, затем блокировка кошелька внутри wallet.Ledger.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/keylock"
	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/pricing"
	"github.com/mmeshcher/smm-storefront/internal/provider"
	"github.com/mmeshcher/smm-storefront/internal/validation"
)

// Provider описывает операции поставщика, нужные жизненному циклу заказа.
// Запросы по размещённому заказу адресуются поставщику, который его принял.
type Provider interface {
	AddOrder(ctx context.Context, req provider.OrderRequest) (*provider.PlacedOrder, error)
	StatusOrSimulated(ctx context.Context, providerID, providerOrderID string) (*provider.OrderStatus, error)
	Refill(ctx context.Context, providerID, providerOrderID string) (*provider.RefillResult, error)
	RefillStatus(ctx context.Context, providerID, refillID string) (*provider.RefillState, error)
}

// Catalog находит услугу в текущем каталоге.
type Catalog interface {
	Lookup(ctx context.Context, id int64) (model.Service, error)
}

// Ledger проводит денежные операции по заказам.
type Ledger interface {
	DebitForOrder(ctx context.Context, order *model.Order) (*model.User, error)
	RefundOrder(ctx context.Context, order *model.Order, status model.OrderStatus) (*model.User, error)
}

// Store описывает хранилище заказов, пользователей, купонов и настроек.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetCoupon(ctx context.Context, code string) (*model.Coupon, error)
	GetSettings(ctx context.Context) (*model.Settings, error)
	ReserveCoupon(ctx context.Context, code string) error
	ReleaseCoupon(ctx context.Context, code string) error
	ListActiveOrders(ctx context.Context, afterID string, limit int) ([]model.Order, error)
	ListRefillsInFlight(ctx context.Context, afterID string, limit int) ([]model.Order, error)
	UpdateOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error)
	ForceOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error)
	SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	SetRefillStatus(ctx context.Context, id string, status model.RefillStatus, refillID string) error
}

const (
	// MaxRuns ограничивает число запусков drip-feed заказа.
	MaxRuns = 1000
	// MaxBilledQuantity ограничивает оплачиваемое количество для услуг без верхней границы.
	MaxBilledQuantity = 1_000_000_000
)

// Config задаёт параметры жизненного цикла.
type Config struct {
	DefaultMarkupPercent decimal.Decimal
	SyncInterval         time.Duration
	SyncBatchSize        int
	SyncConcurrency      int
}

// Request содержит параметры нового заказа.
type Request struct {
	ServiceID  int64
	Link       string
	Quantity   int64
	Runs       int64
	Interval   int64
	CouponCode string
}

// Quotation содержит расчёт стоимости заказа вместе с услугой.
type Quotation struct {
	Service model.Service
	Quote   pricing.Quote
}

// Placement содержит результат размещения: заказ и подтверждённый баланс после списания.
type Placement struct {
	Order *model.Order
	Quote pricing.Quote
	User  *model.User
}

// Lifecycle реализует операции над заказами.
type Lifecycle struct {
	store    Store
	catalog  Catalog
	pricing  *pricing.Engine
	ledger   Ledger
	provider Provider
	locks    *keylock.Locker
	cfg      Config
	logger   *zap.Logger
	newID    func() string
}

// New создаёт Lifecycle.
func New(store Store, catalog Catalog, engine *pricing.Engine, ledger Ledger, p Provider, cfg Config, logger *zap.Logger) *Lifecycle {
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = 100
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 1
	}

	return &Lifecycle{
		store:    store,
		catalog:  catalog,
		pricing:  engine,
		ledger:   ledger,
		provider: p,
		locks:    keylock.New(),
		cfg:      cfg,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Quote рассчитывает стоимость заказа без побочных эффектов.
func (l *Lifecycle) Quote(ctx context.Context, userID string, req Request) (*Quotation, error) {
	user, err := l.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	svc, q, err := l.prepare(ctx, user, req)
	if err != nil {
		return nil, err
	}

	return &Quotation{Service: svc, Quote: q}, nil
}

// PlaceOrder размещает заказ у поставщика и списывает его стоимость.
// При ошибке поставщика деньги не двигаются, заказ не сохраняется, а
// зарезервированное до вызова поставщика использование купона возвращается.
func (l *Lifecycle) PlaceOrder(ctx context.Context, userID string, req Request) (*Placement, error) {
	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock placement: %w", err)
	}
	defer unlock()

	user, err := l.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	svc, q, err := l.prepare(ctx, user, req)
	if err != nil {
		return nil, err
	}

	if q.ChargeCents > user.BalanceCents {
		return nil, fmt.Errorf("%w: need %d, have %d", model.ErrInsufficientFunds, q.ChargeCents, user.BalanceCents)
	}

	if q.CouponCode != "" {
		if err := l.store.ReserveCoupon(ctx, q.CouponCode); err != nil {
			return nil, err
		}
	}

	placed, err := l.provider.AddOrder(ctx, provider.OrderRequest{
		ServiceID: svc.ID,
		Link:      strings.TrimSpace(req.Link),
		Quantity:  req.Quantity,
		Runs:      req.Runs,
		Interval:  req.Interval,
	})
	if err != nil {
		l.logger.Warn("provider did not accept order",
			zap.String("userID", userID),
			zap.Int64("serviceID", svc.ID),
			zap.Error(err))
		l.releaseCoupon(ctx, q.CouponCode)
		return nil, err
	}

	o := &model.Order{
		ID:                l.newID(),
		UserID:            userID,
		ServiceID:         svc.ID,
		ServiceName:       svc.Name,
		Category:          svc.Category,
		Link:              strings.TrimSpace(req.Link),
		Quantity:          req.Quantity,
		Runs:              req.Runs,
		Interval:          req.Interval,
		ChargeCents:       q.ChargeCents,
		ProviderCostCents: q.ProviderCostCents,
		ProfitCents:       q.ProfitCents,
		Status:            model.OrderStatusPending,
		ProviderID:        placed.ProviderID,
		ProviderOrderID:   placed.ProviderOrderID,
		CanRefill:         svc.Refill,
		RefillStatus:      model.RefillStatusNone,
		CouponCode:        q.CouponCode,
	}

	u, err := l.ledger.DebitForOrder(ctx, o)
	if err != nil {
		l.logger.Error("order accepted by provider but not committed, manual reconciliation required",
			zap.String("userID", userID),
			zap.String("providerID", placed.ProviderID),
			zap.String("providerOrderID", placed.ProviderOrderID),
			zap.Int64("chargeCents", q.ChargeCents),
			zap.Error(err))
		l.releaseCoupon(ctx, q.CouponCode)
		return nil, fmt.Errorf("commit order: %w", err)
	}

	if q.NegativeMargin {
		l.logger.Warn("order placed with negative margin",
			zap.String("orderID", o.ID),
			zap.Int64("profitCents", q.ProfitCents))
	}

	l.logger.Info("order placed",
		zap.String("orderID", o.ID),
		zap.String("userID", userID),
		zap.String("providerOrderID", o.ProviderOrderID),
		zap.Int64("chargeCents", o.ChargeCents))

	return &Placement{Order: o, Quote: q, User: u}, nil
}

func (l *Lifecycle) releaseCoupon(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if err := l.store.ReleaseCoupon(context.WithoutCancel(ctx), code); err != nil {
		l.logger.Error("release coupon", zap.String("coupon", code), zap.Error(err))
	}
}

func (l *Lifecycle) activeUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == model.UserStatusBanned {
		return nil, model.ErrUserBanned
	}
	return user, nil
}

func (l *Lifecycle) prepare(ctx context.Context, user *model.User, req Request) (model.Service, pricing.Quote, error) {
	if err := validation.ValidateLink(req.Link); err != nil {
		return model.Service{}, pricing.Quote{}, err
	}

	svc, err := l.catalog.Lookup(ctx, req.ServiceID)
	if err != nil {
		return model.Service{}, pricing.Quote{}, err
	}

	if req.Quantity < svc.Min || (svc.Max > 0 && req.Quantity > svc.Max) {
		return model.Service{}, pricing.Quote{}, fmt.Errorf("%w: %d not in [%d, %d]",
			model.ErrQuantityOutOfRange, req.Quantity, svc.Min, svc.Max)
	}

	if req.Runs < 0 || req.Interval < 0 {
		return model.Service{}, pricing.Quote{}, fmt.Errorf("%w: runs and interval must not be negative",
			model.ErrQuantityOutOfRange)
	}
	if req.Runs > MaxRuns {
		return model.Service{}, pricing.Quote{}, fmt.Errorf("%w: runs %d above %d",
			model.ErrQuantityOutOfRange, req.Runs, MaxRuns)
	}
	if req.Runs > 0 && !svc.Dripfeed {
		return model.Service{}, pricing.Quote{}, fmt.Errorf("%w: service %d", model.ErrDripfeedUnsupported, svc.ID)
	}

	billed, err := billedQuantity(req, svc)
	if err != nil {
		return model.Service{}, pricing.Quote{}, err
	}

	markup, err := l.markup(ctx)
	if err != nil {
		return model.Service{}, pricing.Quote{}, err
	}

	var coupon *model.Coupon
	if code := model.NormalizeCouponCode(req.CouponCode); code != "" {
		coupon, err = l.store.GetCoupon(ctx, code)
		if err != nil {
			return model.Service{}, pricing.Quote{}, err
		}
	}

	q, err := l.pricing.Quote(pricing.Request{
		Service:       svc,
		Quantity:      billed,
		Tier:          user.Tier,
		MarkupPercent: markup,
		Coupon:        coupon,
	})
	if err != nil {
		return model.Service{}, pricing.Quote{}, err
	}

	return svc, q, nil
}

func (l *Lifecycle) markup(ctx context.Context) (decimal.Decimal, error) {
	s, err := l.store.GetSettings(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get settings: %w", err)
	}
	if s == nil {
		return l.cfg.DefaultMarkupPercent, nil
	}
	return s.MarkupPercent, nil
}

// billedQuantity возвращает оплачиваемое количество: для drip-feed это quantity × runs.
// Итог не превышает max услуги, а для услуг без max значение MaxBilledQuantity.
func billedQuantity(req Request, svc model.Service) (int64, error) {
	limit := int64(MaxBilledQuantity)
	if svc.Max > 0 && svc.Max < limit {
		limit = svc.Max
	}

	runs := max(req.Runs, 1)
	if req.Quantity > limit/runs {
		return 0, fmt.Errorf("%w: %d x %d runs above %d",
			model.ErrQuantityOutOfRange, req.Quantity, runs, limit)
	}
	return req.Quantity * runs, nil
}

// RequestRefill запрашивает докрутку завершённого заказа у поставщика, который его принял.
// Повторная докрутка возможна после того, как предыдущая завершилась или отклонена.
func (l *Lifecycle) RequestRefill(ctx context.Context, userID, orderID string) (*model.Order, error) {
	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock placement: %w", err)
	}
	defer unlock()

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, model.ErrOrderNotFound
	}

	if !o.CanRefill || o.Status != model.OrderStatusCompleted || o.RefillStatus.InFlight() {
		return nil, fmt.Errorf("%w: status %s, refill %s", model.ErrRefillNotAllowed, o.Status, o.RefillStatus)
	}

	res, err := l.provider.Refill(ctx, o.ProviderID, o.ProviderOrderID)
	if err != nil {
		return nil, err
	}

	if err := l.store.SetRefillStatus(ctx, o.ID, model.RefillStatusRequested, res.RefillID); err != nil {
		return nil, err
	}

	l.logger.Info("refill requested",
		zap.String("orderID", o.ID),
		zap.String("refillID", res.RefillID))

	return l.store.GetOrder(ctx, o.ID)
}

// AdminOverride задаёт статус заказа вручную. С refund стоимость заказа
// возвращается ровно один раз.
func (l *Lifecycle) AdminOverride(ctx context.Context, orderID string, status model.OrderStatus, refund bool) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	unlock, err := l.locks.Lock(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock placement: %w", err)
	}
	defer unlock()

	if refund {
		if _, err := l.ledger.RefundOrder(ctx, o, status); err != nil {
			return nil, err
		}
	} else if err := l.store.SetOrderStatus(ctx, o.ID, status); err != nil {
		return nil, err
	}

	l.logger.Info("order status overridden",
		zap.String("orderID", o.ID),
		zap.String("status", string(status)),
		zap.Bool("refund", refund))

	return l.store.GetOrder(ctx, o.ID)
}

// Resync запрашивает статус у поставщика независимо от текущего статуса заказа
// и применяет его, снимая ручной статус. Если поставщик недоступен или прислал
// неизвестный статус, заказ остаётся как есть.
func (l *Lifecycle) Resync(ctx context.Context, orderID string) (*SyncResult, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Refunded {
		return nil, fmt.Errorf("%w: order %s is refunded", model.ErrInvalidStatus, o.ID)
	}
	if o.ProviderOrderID == "" {
		return nil, fmt.Errorf("%w: order %s has no provider order", model.ErrInvalidStatus, o.ID)
	}

	return l.applyProviderStatus(ctx, o, l.store.ForceOrderProgress)
}
