package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mercatolabs/mercato-backend/api/controllers"
	webhookcontrollers "github.com/mercatolabs/mercato-backend/api/controllers/webhooks"
	"github.com/mercatolabs/mercato-backend/api/middleware"
	"github.com/mercatolabs/mercato-backend/internal/cart"
	checkoutsvc "github.com/mercatolabs/mercato-backend/internal/checkout"
	"github.com/mercatolabs/mercato-backend/internal/notifications"
	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/internal/payments"
	"github.com/mercatolabs/mercato-backend/internal/shipping"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	pkgredis "github.com/mercatolabs/mercato-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         *pkgredis.Client
	Pingers       map[string]controllers.Pinger
	Gatherer      prometheus.Gatherer
	Checkout      checkoutsvc.Service
	Cart          cart.Service
	Shipping      *shipping.Service
	Orders        orders.Service
	Payments      payments.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{gateway}", webhookcontrollers.PaymentGateway(deps.Payments, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/carts/guest-token", controllers.IssueGuestCartToken(deps.Cart, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/shipping-methods", controllers.ListShippingMethods(deps.Shipping, logg))
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", controllers.StartCheckout(deps.Checkout, logg))
				r.Route("/{sessionKey}", func(r chi.Router) {
					r.Get("/", controllers.GetCheckoutSummary(deps.Checkout, logg))
					r.Put("/address", controllers.SelectCheckoutAddress(deps.Checkout, logg))
					r.Put("/shipping", controllers.SelectCheckoutShipping(deps.Checkout, logg))
					r.Put("/payment", controllers.SelectCheckoutPayment(deps.Checkout, logg))
					r.Post("/coupon", controllers.ApplyCheckoutCoupon(deps.Checkout, logg))
					r.Post("/confirm", controllers.ConfirmCheckout(deps.Checkout, logg))
				})
			})
		})

		payRate := middleware.PaymentRateLimit(cfg.RateLimit, deps.Redis, logg)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.With(payRate).Post("/{orderId}/payments", controllers.InitiateOrderPayments(deps.Payments, logg))
		})

		r.Route("/vendor-orders", func(r chi.Router) {
			r.With(payRate).Post("/{vendorOrderId}/payments", controllers.InitiateVendorOrderPayment(deps.Payments, logg))
		})

		r.Post("/payments/{attemptId}/verify", controllers.VerifyPaymentAttempt(deps.Payments, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.VendorContext(logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.ListVendorOrders(deps.Orders, logg))
				r.Get("/{vendorOrderId}", controllers.GetVendorOrder(deps.Orders, logg))
				r.Post("/{vendorOrderId}/status", controllers.UpdateVendorOrderStatus(deps.Orders, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			})
		})
	})

	return r
}
