package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Deps is what the HTTP surface needs from the process.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Idempotency pkgredis.IdempotencyStore
	Checkout    ordercontrollers.Placer
	Orders      ordercontrollers.Reader
	Gatherer    prometheus.Gatherer
	Readiness   []controllers.Dependency
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWT, logg))

		r.With(middleware.Idempotency(deps.Idempotency, logg)).Post("/orders", ordercontrollers.Place(deps.Checkout, logg))
		r.With(middleware.RequireAuth(logg)).Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))

		r.Route("/buyer", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Get("/orders", ordercontrollers.ListBuyer(deps.Orders, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin))
			r.Get("/orders", ordercontrollers.ListVendor(deps.Orders, logg))
			r.Get("/invoices", ordercontrollers.ListVendorInvoices(deps.Orders, logg))
		})
	})

	return r
}
