package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/fulfillment/internal/health"
)

// NewRouter собирает все маршруты сервиса поверх chi.
// healthHandler может быть nil, тогда служебные маршруты не регистрируются.
func NewRouter(h *Handler, healthHandler *health.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.withIdempotency(h.createOrder))
			r.Get("/number/{number}", h.getOrderByNumber)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Post("/status", h.transitionStatus)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/payment-status", h.setPaymentStatus)
			})
		})
		r.Get("/users/{userID}/orders", h.listUserOrders)
	})

	if healthHandler != nil {
		r.Get("/healthz", healthHandler.ServeHTTP)
		r.Get("/readyz", healthHandler.ReadinessHandler)
		r.Get("/livez", health.LivenessHandler)
	}

	return r
}
