package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда база данных
// не настроена, и в тестах. Семантика операций совпадает с PostgresRepository.
type MemoryRepository struct {
	mu           sync.Mutex
	users        map[string]model.User
	orders       map[string]model.Order
	coupons      map[string]model.Coupon
	providers    map[string]model.Provider
	transactions []model.Transaction
	settings     *model.Settings
	now          func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]model.User),
		orders:    make(map[string]model.Order),
		coupons:   make(map[string]model.Coupon),
		providers: make(map[string]model.Provider),
		now:       time.Now,
	}
}

// Close реализует интерфейс хранилища.
func (r *MemoryRepository) Close() error { return nil }

// CreateUser создаёт пользователя с нулевым балансом.
func (r *MemoryRepository) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUserExists, u.ID)
	}

	u.BalanceCents, u.TotalSpentCents, u.ProfitContributionCents = 0, 0, 0
	if u.Tier == "" {
		u.Tier = model.TierStandard
	}
	if u.Status == "" {
		u.Status = model.UserStatusActive
	}
	u.CreatedAt = r.now()
	r.users[u.ID] = u

	return &u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (r *MemoryRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// SetUserTier меняет ценовую группу пользователя.
func (r *MemoryRepository) SetUserTier(ctx context.Context, id string, tier model.Tier) error {
	return r.updateUser(id, func(u *model.User) { u.Tier = tier })
}

// SetUserStatus блокирует или разблокирует пользователя.
func (r *MemoryRepository) SetUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	return r.updateUser(id, func(u *model.User) { u.Status = status })
}

func (r *MemoryRepository) updateUser(id string, fn func(u *model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

// ApplyDebit списывает средства; если задан заказ, сохраняет его. Купон заказа
// к этому моменту уже зарезервирован через ReserveCoupon.
func (r *MemoryRepository) ApplyDebit(ctx context.Context, d model.Debit) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[d.UserID]
	if !ok {
		return nil, model.ErrUserNotFound
	}

	if d.AmountCents > u.BalanceCents {
		return nil, fmt.Errorf("%w: need %d, have %d", model.ErrInsufficientFunds, d.AmountCents, u.BalanceCents)
	}

	now := r.now()
	kind := model.TransactionDebit
	var orderID string

	if d.Order != nil {
		if _, exists := r.orders[d.Order.ID]; exists {
			return nil, fmt.Errorf("order %s already exists", d.Order.ID)
		}

		o := cloneOrder(*d.Order)
		o.CreatedAt, o.UpdatedAt = now, now
		r.orders[o.ID] = o

		u.ProfitContributionCents += o.ProfitCents
		kind = model.TransactionOrder
		orderID = o.ID
	}

	u.BalanceCents -= d.AmountCents
	u.TotalSpentCents += d.AmountCents
	r.users[u.ID] = u

	r.appendTransaction(model.Transaction{
		UserID:            u.ID,
		Kind:              kind,
		AmountCents:       -d.AmountCents,
		BalanceAfterCents: u.BalanceCents,
		OrderID:           orderID,
		Note:              d.Note,
		CreatedAt:         now,
	})

	return &u, nil
}

// ApplyCredit зачисляет средства. Возврат помечает заказ возвращённым и убирает
// его из totalSpent и profitContribution пользователя.
func (r *MemoryRepository) ApplyCredit(ctx context.Context, c model.Credit) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[c.UserID]
	if !ok {
		return nil, model.ErrUserNotFound
	}

	now := r.now()

	if c.RefundOrderID != "" {
		o, ok := r.orders[c.RefundOrderID]
		if !ok || o.UserID != c.UserID {
			return nil, model.ErrOrderNotFound
		}
		if o.Refunded {
			return nil, fmt.Errorf("%w: %s", model.ErrDuplicateRefund, o.ID)
		}
		o.Refunded = true
		o.Overridden = true
		o.Status = c.RefundStatus
		o.UpdatedAt = now
		r.orders[o.ID] = o

		u.TotalSpentCents -= o.ChargeCents
		u.ProfitContributionCents -= o.ProfitCents
	}

	u.BalanceCents += c.AmountCents
	r.users[u.ID] = u

	r.appendTransaction(model.Transaction{
		UserID:            u.ID,
		Kind:              c.Kind,
		AmountCents:       c.AmountCents,
		BalanceAfterCents: u.BalanceCents,
		OrderID:           c.RefundOrderID,
		Method:            c.Method,
		Note:              c.Note,
		CreatedAt:         now,
	})

	return &u, nil
}

// ApplyAdjustment изменяет баланс на DeltaCents, не допуская отрицательного результата.
func (r *MemoryRepository) ApplyAdjustment(ctx context.Context, a model.Adjustment) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[a.UserID]
	if !ok {
		return nil, model.ErrUserNotFound
	}

	if u.BalanceCents+a.DeltaCents < 0 {
		return nil, fmt.Errorf("%w: balance %d, delta %d", model.ErrInvalidAdjustment, u.BalanceCents, a.DeltaCents)
	}

	u.BalanceCents += a.DeltaCents
	r.users[u.ID] = u

	r.appendTransaction(model.Transaction{
		UserID:            u.ID,
		Kind:              model.TransactionAdjustment,
		AmountCents:       a.DeltaCents,
		BalanceAfterCents: u.BalanceCents,
		Note:              a.Note,
		CreatedAt:         r.now(),
	})

	return &u, nil
}

func (r *MemoryRepository) appendTransaction(t model.Transaction) {
	t.ID = uuid.NewString()
	r.transactions = append(r.transactions, t)
}

// ListTransactions возвращает журнал операций пользователя, новые первыми.
func (r *MemoryRepository) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Transaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if r.transactions[i].UserID == userID {
			res = append(res, r.transactions[i])
		}
	}
	return res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *MemoryRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.listOrders(func(o model.Order) bool { return o.UserID == userID }, 0), nil
}

// ListOrders возвращает последние заказы всех пользователей.
func (r *MemoryRepository) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return r.listOrders(func(model.Order) bool { return true }, limit), nil
}

// ListActiveOrders возвращает страницу незавершённых заказов без ручного статуса
// с идентификатором больше afterID, по возрастанию идентификатора.
func (r *MemoryRepository) ListActiveOrders(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	return r.pageOrders(func(o model.Order) bool {
		return !o.Status.IsTerminal() && !o.Overridden && o.ProviderOrderID != ""
	}, afterID, limit), nil
}

// ListRefillsInFlight возвращает страницу заказов с незавершённой докруткой
// с идентификатором больше afterID, по возрастанию идентификатора.
func (r *MemoryRepository) ListRefillsInFlight(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	return r.pageOrders(func(o model.Order) bool {
		return o.RefillStatus.InFlight() && o.ProviderRefillID != ""
	}, afterID, limit), nil
}

func (r *MemoryRepository) listOrders(keep func(model.Order) bool, limit int) []model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.orders {
		if keep(o) {
			res = append(res, cloneOrder(o))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (r *MemoryRepository) pageOrders(keep func(model.Order) bool, afterID string, limit int) []model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.orders {
		if o.ID > afterID && keep(o) {
			res = append(res, cloneOrder(o))
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// UpdateOrderProgress применяет данные сверки. Возвращает false, если заказ
// завершён или его статус задан администратором.
func (r *MemoryRepository) UpdateOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, model.ErrOrderNotFound
	}
	if o.Overridden || o.Status.IsTerminal() {
		return false, nil
	}

	o.Status = p.Status
	if p.StartCount != nil {
		o.StartCount = int64Ptr(*p.StartCount)
	}
	if p.Remains != nil {
		o.Remains = int64Ptr(*p.Remains)
	}
	o.UpdatedAt = r.now()
	r.orders[id] = o

	return true, nil
}

// ForceOrderProgress применяет данные сверки независимо от текущего статуса и
// снимает ручной статус. Возвращает false для возвращённого заказа.
func (r *MemoryRepository) ForceOrderProgress(ctx context.Context, id string, p model.Progress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, model.ErrOrderNotFound
	}
	if o.Refunded {
		return false, nil
	}

	o.Status = p.Status
	o.Overridden = false
	if p.StartCount != nil {
		o.StartCount = int64Ptr(*p.StartCount)
	}
	if p.Remains != nil {
		o.Remains = int64Ptr(*p.Remains)
	}
	o.UpdatedAt = r.now()
	r.orders[id] = o

	return true, nil
}

// SetOrderStatus задаёт статус вручную и помечает заказ как переопределённый.
func (r *MemoryRepository) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return r.updateOrder(id, func(o *model.Order) {
		o.Status = status
		o.Overridden = true
	})
}

// SetRefillStatus сохраняет состояние докрутки.
func (r *MemoryRepository) SetRefillStatus(ctx context.Context, id string, status model.RefillStatus, refillID string) error {
	return r.updateOrder(id, func(o *model.Order) {
		o.RefillStatus = status
		if refillID != "" {
			o.ProviderRefillID = refillID
		}
	})
}

func (r *MemoryRepository) updateOrder(id string, fn func(o *model.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	fn(&o)
	o.UpdatedAt = r.now()
	r.orders[id] = o
	return nil
}

// CreateCoupon сохраняет новый купон.
func (r *MemoryRepository) CreateCoupon(ctx context.Context, c model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.Code = model.NormalizeCouponCode(c.Code)
	if _, ok := r.coupons[c.Code]; ok {
		return fmt.Errorf("%w: %s", model.ErrCouponExists, c.Code)
	}
	c.CreatedAt = r.now()
	r.coupons[c.Code] = c
	return nil
}

// GetCoupon возвращает купон по коду; для неизвестного кода model.ErrCouponInvalid.
func (r *MemoryRepository) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[model.NormalizeCouponCode(code)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	return &c, nil
}

// ReserveCoupon занимает одно использование купона. Для неактивного, истёкшего
// или исчерпанного купона возвращает model.ErrCouponInvalid.
func (r *MemoryRepository) ReserveCoupon(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = model.NormalizeCouponCode(code)
	c, ok := r.coupons[code]
	if !ok || c.StatusAt(r.now()) != model.CouponStatusActive {
		return fmt.Errorf("%w: %s", model.ErrCouponInvalid, code)
	}
	c.UsedCount++
	r.coupons[code] = c
	return nil
}

// ReleaseCoupon возвращает использование, занятое ReserveCoupon.
func (r *MemoryRepository) ReleaseCoupon(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = model.NormalizeCouponCode(code)
	c, ok := r.coupons[code]
	if !ok {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	r.coupons[code] = c
	return nil
}

// ListCoupons возвращает все купоны по коду.
func (r *MemoryRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

// SetCouponActive включает или выключает купон.
func (r *MemoryRepository) SetCouponActive(ctx context.Context, code string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = model.NormalizeCouponCode(code)
	c, ok := r.coupons[code]
	if !ok {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	c.Active = active
	r.coupons[code] = c
	return nil
}

// DeleteCoupon удаляет купон.
func (r *MemoryRepository) DeleteCoupon(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = model.NormalizeCouponCode(code)
	if _, ok := r.coupons[code]; !ok {
		return fmt.Errorf("%w: unknown code", model.ErrCouponInvalid)
	}
	delete(r.coupons, code)
	return nil
}

// CreateProvider сохраняет поставщика.
func (r *MemoryRepository) CreateProvider(ctx context.Context, p model.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.CreatedAt = r.now()
	r.providers[p.ID] = p
	return nil
}

// GetProvider возвращает поставщика по идентификатору.
func (r *MemoryRepository) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, model.ErrProviderNotFound
	}
	return &p, nil
}

// ListProviders возвращает поставщиков по приоритету.
func (r *MemoryRepository) ListProviders(ctx context.Context) ([]model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Priority == res[j].Priority {
			return res[i].Name < res[j].Name
		}
		return res[i].Priority < res[j].Priority
	})
	return res, nil
}

// UpdateProvider обновляет настройки поставщика.
func (r *MemoryRepository) UpdateProvider(ctx context.Context, p model.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.providers[p.ID]
	if !ok {
		return model.ErrProviderNotFound
	}
	p.CreatedAt = old.CreatedAt
	r.providers[p.ID] = p
	return nil
}

// DeleteProvider удаляет поставщика.
func (r *MemoryRepository) DeleteProvider(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return model.ErrProviderNotFound
	}
	delete(r.providers, id)
	return nil
}

// GetSettings возвращает настройки или nil, если они ещё не сохранялись.
func (r *MemoryRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settings == nil {
		return nil, nil
	}
	s := *r.settings
	return &s, nil
}

// UpdateSettings сохраняет настройки.
func (r *MemoryRepository) UpdateSettings(ctx context.Context, s model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.UpdatedAt = r.now()
	r.settings = &s
	return nil
}

// Stats возвращает сводные показатели.
func (r *MemoryRepository) Stats(ctx context.Context) (*model.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &model.Stats{
		Users:  int64(len(r.users)),
		Orders: int64(len(r.orders)),
	}
	for _, u := range r.users {
		st.BalancesCents += u.BalanceCents
	}
	for _, o := range r.orders {
		if !o.Status.IsTerminal() {
			st.ActiveOrders++
		}
		if o.Refunded {
			continue
		}
		st.RevenueCents += o.ChargeCents
		st.ProfitCents += o.ProfitCents
	}
	return st, nil
}

func cloneOrder(o model.Order) model.Order {
	if o.StartCount != nil {
		o.StartCount = int64Ptr(*o.StartCount)
	}
	if o.Remains != nil {
		o.Remains = int64Ptr(*o.Remains)
	}
	return o
}

func int64Ptr(v int64) *int64 {
	return &v
}
