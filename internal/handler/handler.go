// Package handler содержит HTTP-обработчики API витрины SMM-услуг.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/middleware"
	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/order"
	"github.com/mmeshcher/smm-storefront/internal/provider"
	"github.com/mmeshcher/smm-storefront/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, userID, email string) (*model.User, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	QuoteOrder(ctx context.Context, userID string, req order.Request) (*order.Quotation, error)
	PlaceOrder(ctx context.Context, userID string, req order.Request) (*order.Placement, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	RequestRefill(ctx context.Context, userID, orderID string) (*model.Order, error)
	GetBalance(ctx context.Context, userID string) (*model.Balance, error)
	Deposit(ctx context.Context, userID string, amount float64, method string) (*model.Balance, error)
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)

	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserTier(ctx context.Context, userID string, tier model.Tier) error
	SetUserStatus(ctx context.Context, userID string, status model.UserStatus) error
	AdjustBalance(ctx context.Context, userID string, amount float64, isAdd bool, note string) (*model.Balance, error)
	ListAllOrders(ctx context.Context, limit int) ([]model.Order, error)
	SyncOrders(ctx context.Context) (order.SyncReport, error)
	OverrideOrder(ctx context.Context, orderID string, status model.OrderStatus, refund bool) (*model.Order, error)
	ResyncOrder(ctx context.Context, orderID string) (*order.SyncResult, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	CreateProvider(ctx context.Context, p model.Provider) (*model.Provider, error)
	UpdateProvider(ctx context.Context, p model.Provider) (*model.Provider, error)
	DeleteProvider(ctx context.Context, id string) error
	ProviderBalance(ctx context.Context) (*provider.BalanceInfo, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, c model.Coupon) (*model.Coupon, error)
	SetCouponActive(ctx context.Context, code string, active bool) error
	DeleteCoupon(ctx context.Context, code string) error
	GetSettings(ctx context.Context) (*model.Settings, error)
	UpdateSettings(ctx context.Context, markup decimal.Decimal) (*model.Settings, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validation.New(),
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return userID, ok
}

type registerRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// Register создаёт кошелёк для пользователя из токена идентификации.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), userID, req.Email)
	if err != nil {
		h.writeError(w, r, "register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(*u))
}

// Profile возвращает профиль текущего пользователя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(*u))
}

// ListServices возвращает каталог услуг с ценами продажи.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.writeError(w, r, "list services", err)
		return
	}

	resp := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		resp = append(resp, newServiceResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

type orderRequest struct {
	Service  int64  `json:"service" validate:"required,gt=0"`
	Link     string `json:"link" validate:"required,link"`
	Quantity int64  `json:"quantity" validate:"required,gt=0,lte=1000000000"`
	Runs     int64  `json:"runs" validate:"gte=0,lte=1000"`
	Interval int64  `json:"interval" validate:"gte=0"`
	Coupon   string `json:"coupon" validate:"omitempty,max=64"`
}

func (req orderRequest) toDomain() order.Request {
	return order.Request{
		ServiceID:  req.Service,
		Link:       req.Link,
		Quantity:   req.Quantity,
		Runs:       req.Runs,
		Interval:   req.Interval,
		CouponCode: req.Coupon,
	}
}

// QuoteOrder рассчитывает стоимость заказа без списания средств.
func (h *Handler) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}

	q, err := h.service.QuoteOrder(r.Context(), userID, req.toDomain())
	if err != nil {
		h.writeError(w, r, "quote order", err)
		return
	}

	writeJSON(w, http.StatusOK, newQuoteResponse(q.Quote))
}

// PlaceOrder размещает заказ у поставщика и списывает средства.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.PlaceOrder(r.Context(), userID, req.toDomain())
	if err != nil {
		h.writeError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, placementResponse{
		Order:   newOrderResponse(*p.Order),
		Quote:   newQuoteResponse(p.Quote),
		Balance: model.CentsToFloat(p.User.BalanceCents),
	})
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RequestRefill запрашивает докрутку заказа.
func (h *Handler) RequestRefill(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	o, err := h.service.RequestRefill(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "request refill", err)
		return
	}

	writeJSON(w, http.StatusAccepted, newOrderResponse(*o))
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

type depositRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Method string  `json:"method" validate:"required,max=32"`
}

// Deposit пополняет баланс текущего пользователя.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.service.Deposit(r.Context(), userID, req.Amount, req.Method)
	if err != nil {
		h.writeError(w, r, "deposit", err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// GetTransactions возвращает журнал операций по кошельку.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get transactions", err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, newTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}
