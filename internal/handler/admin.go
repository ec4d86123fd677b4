package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// ListUsers возвращает всех пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, "list users", err)
		return
	}

	resp := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, adminUserResponse{
			userResponse:       newUserResponse(u),
			ProfitContribution: model.CentsToFloat(u.ProfitContributionCents),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type tierRequest struct {
	Tier string `json:"tier" validate:"required"`
}

// SetUserTier меняет ценовую группу пользователя.
func (h *Handler) SetUserTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetUserTier(r.Context(), chi.URLParam(r, "id"), model.Tier(req.Tier)); err != nil {
		h.writeError(w, r, "set user tier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetUserStatus блокирует или разблокирует пользователя.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req userStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetUserStatus(r.Context(), chi.URLParam(r, "id"), model.UserStatus(req.Status)); err != nil {
		h.writeError(w, r, "set user status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Add    bool    `json:"add"`
	Note   string  `json:"note" validate:"max=500"`
}

// AdjustBalance вручную начисляет или списывает средства.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.service.AdjustBalance(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Add, req.Note)
	if err != nil {
		h.writeError(w, r, "adjust balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// ListAllOrders возвращает последние заказы всех пользователей.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.service.ListAllOrders(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, "list orders", err)
		return
	}

	resp := make([]adminOrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newAdminOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncOrders запускает сверку активных заказов.
func (h *Handler) SyncOrders(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SyncOrders(r.Context())
	if err != nil {
		h.writeError(w, r, "sync orders", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
	Refund bool   `json:"refund"`
}

// OverrideOrder задаёт статус заказа вручную.
func (h *Handler) OverrideOrder(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.service.OverrideOrder(r.Context(), chi.URLParam(r, "id"), model.OrderStatus(req.Status), req.Refund)
	if err != nil {
		h.writeError(w, r, "override order", err)
		return
	}
	writeJSON(w, http.StatusOK, newAdminOrderResponse(*o))
}

type resyncResponse struct {
	Order          adminOrderResponse `json:"order"`
	ProviderStatus string             `json:"provider_status,omitempty"`
	Simulated      bool               `json:"simulated"`
	Updated        bool               `json:"updated"`
}

// ResyncOrder принудительно сверяет заказ с поставщиком и снимает ручной статус.
func (h *Handler) ResyncOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ResyncOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "resync order", err)
		return
	}

	resp := resyncResponse{
		Order:   newAdminOrderResponse(*res.Order),
		Updated: res.Updated,
	}
	if res.Provider != nil {
		resp.ProviderStatus = res.Provider.Status
		resp.Simulated = res.Provider.Simulated
	}
	writeJSON(w, http.StatusOK, resp)
}

type providerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	BaseURL  string `json:"base_url" validate:"required,link"`
	Key      string `json:"key" validate:"max=256"`
	Status   string `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	Priority int    `json:"priority" validate:"gte=0"`
}

func (req providerRequest) toDomain(id string) model.Provider {
	return model.Provider{
		ID:       id,
		Name:     req.Name,
		BaseURL:  req.BaseURL,
		Key:      req.Key,
		Status:   model.ProviderStatus(req.Status),
		Priority: req.Priority,
	}
}

// ListProviders возвращает поставщиков без API-ключей.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context())
	if err != nil {
		h.writeError(w, r, "list providers", err)
		return
	}

	resp := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		resp = append(resp, newProviderResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProvider добавляет поставщика.
func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.CreateProvider(r.Context(), req.toDomain(""))
	if err != nil {
		h.writeError(w, r, "create provider", err)
		return
	}
	writeJSON(w, http.StatusCreated, newProviderResponse(*p))
}

// UpdateProvider изменяет поставщика.
func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.UpdateProvider(r.Context(), req.toDomain(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, "update provider", err)
		return
	}
	writeJSON(w, http.StatusOK, newProviderResponse(*p))
}

// DeleteProvider удаляет поставщика.
func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProvider(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "delete provider", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type providerBalanceResponse struct {
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Simulated bool            `json:"simulated"`
}

// ProviderBalance возвращает баланс аккаунта у поставщика.
func (h *Handler) ProviderBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.ProviderBalance(r.Context())
	if err != nil {
		h.writeError(w, r, "provider balance", err)
		return
	}
	writeJSON(w, http.StatusOK, providerBalanceResponse{Balance: b.Balance, Currency: b.Currency, Simulated: b.Simulated})
}

// ListCoupons возвращает купоны с вычисленным статусом.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context())
	if err != nil {
		h.writeError(w, r, "list coupons", err)
		return
	}

	now := time.Now()
	resp := make([]couponResponse, 0, len(coupons))
	for _, c := range coupons {
		resp = append(resp, newCouponResponse(c, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

type couponRequest struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Type       string          `json:"type" validate:"required,oneof=PERCENTAGE FIXED"`
	Value      decimal.Decimal `json:"value"`
	UsageLimit int64           `json:"usage_limit" validate:"gt=0"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// CreateCoupon создаёт купон.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.CreateCoupon(r.Context(), model.Coupon{
		Code:       req.Code,
		Type:       model.DiscountType(req.Type),
		Value:      req.Value,
		UsageLimit: req.UsageLimit,
		ExpiresAt:  req.ExpiresAt,
		Active:     true,
	})
	if err != nil {
		h.writeError(w, r, "create coupon", err)
		return
	}
	writeJSON(w, http.StatusCreated, newCouponResponse(*c, time.Now()))
}

type couponActiveRequest struct {
	Active bool `json:"active"`
}

// SetCouponActive включает или выключает купон.
func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	var req couponActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetCouponActive(r.Context(), chi.URLParam(r, "code"), req.Active); err != nil {
		h.writeError(w, r, "set coupon active", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCoupon удаляет купон.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCoupon(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.writeError(w, r, "delete coupon", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings возвращает глобальную наценку.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{MarkupPercent: st.MarkupPercent})
}

// UpdateSettings сохраняет глобальную наценку.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsResponse
	if !h.decode(w, r, &req) {
		return
	}

	st, err := h.service.UpdateSettings(r.Context(), req.MarkupPercent)
	if err != nil {
		h.writeError(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{MarkupPercent: st.MarkupPercent})
}

// Stats возвращает сводные показатели.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, "stats", err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Users:        s.Users,
		Orders:       s.Orders,
		ActiveOrders: s.ActiveOrders,
		Revenue:      model.CentsToFloat(s.RevenueCents),
		Profit:       model.CentsToFloat(s.ProfitCents),
		Balances:     model.CentsToFloat(s.BalancesCents),
	})
}
