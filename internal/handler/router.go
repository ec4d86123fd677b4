package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/smm-storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/register", h.Register)
		r.Get("/profile", h.Profile)
		r.Get("/services", h.ListServices)

		r.Post("/orders/quote", h.QuoteOrder)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetOrders)
		r.Post("/orders/{id}/refill", h.RequestRefill)

		r.Get("/balance", h.GetBalance)
		r.Post("/balance/deposit", h.Deposit)

		r.Get("/transactions", h.GetTransactions)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireAdmin)

		r.Get("/users", h.ListUsers)
		r.Patch("/users/{id}/tier", h.SetUserTier)
		r.Patch("/users/{id}/status", h.SetUserStatus)
		r.Post("/users/{id}/balance", h.AdjustBalance)

		r.Get("/orders", h.ListAllOrders)
		r.Post("/orders/sync", h.SyncOrders)
		r.Post("/orders/{id}/override", h.OverrideOrder)
		r.Post("/orders/{id}/resync", h.ResyncOrder)

		r.Get("/providers", h.ListProviders)
		r.Post("/providers", h.CreateProvider)
		r.Get("/providers/balance", h.ProviderBalance)
		r.Put("/providers/{id}", h.UpdateProvider)
		r.Delete("/providers/{id}", h.DeleteProvider)

		r.Get("/coupons", h.ListCoupons)
		r.Post("/coupons", h.CreateCoupon)
		r.Patch("/coupons/{code}", h.SetCouponActive)
		r.Delete("/coupons/{code}", h.DeleteCoupon)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)

		r.Get("/stats", h.Stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
