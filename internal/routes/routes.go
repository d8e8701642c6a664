// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"time"

	"tapdeal/internal/handlers"
	"tapdeal/internal/middleware"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultValidateLimit  = 30
	defaultValidateWindow = time.Minute
)

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Store      repositories.Store
	Cache      handlers.HealthChecker
	Gateway    gateway.Gateway
	Bills      bill.Service
	Orders     order.Service
	Partners   partner.Service
	Analytics  analytics.Service
	Dispatcher *webhook.Dispatcher
	JWTSecret  string
	// Gatherer serves /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	// ValidateLimit caps token validations per IP per ValidateWindow.
	ValidateLimit  int
	ValidateWindow time.Duration
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, deps Dependencies) {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.ValidateLimit <= 0 {
		deps.ValidateLimit = defaultValidateLimit
	}
	if deps.ValidateWindow <= 0 {
		deps.ValidateWindow = defaultValidateWindow
	}

	billHandler := handlers.NewBillHandler(deps.Bills)
	paymentHandler := handlers.NewPaymentHandler(deps.Orders, deps.Dispatcher, deps.Gateway)
	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Partners)
	partnerHandler := handlers.NewPartnerHandler(deps.Partners, deps.Orders, deps.Analytics)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Cache)

	auth := middleware.NewAuthMiddleware(deps.JWTSecret)
	requirePartner := middleware.RequirePartner(deps.Partners)

	// Public routes
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	// Gateway callbacks authenticate by signature, not by user token.
	api.Post("/payments/webhook", paymentHandler.Webhook)

	protected := api.Group("", auth.Handler)

	// Bill routes
	bills := protected.Group("/bills")
	bills.Post("/create", requirePartner, middleware.HasPermission(models.PermissionBillWrite), billHandler.Create)
	bills.Get("/active", requirePartner, middleware.HasPermission(models.PermissionBillRead), billHandler.Active)
	bills.Post("/validate",
		limiter.New(limiter.Config{
			Max:        deps.ValidateLimit,
			Expiration: deps.ValidateWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: handlers.TooManyRequests,
		}),
		middleware.HasPermission(models.PermissionBillRead),
		billHandler.Validate,
	)
	bills.Post("/pay", middleware.HasPermission(models.PermissionPaymentWrite), paymentHandler.PayBill)
	bills.Delete("/:billId", requirePartner, middleware.HasPermission(models.PermissionBillWrite), billHandler.Cancel)

	// Payment routes
	payments := protected.Group("/payments")
	payments.Post("/verify", middleware.HasPermission(models.PermissionPaymentWrite), paymentHandler.Verify)
	payments.Post("/direct", middleware.HasPermission(models.PermissionPaymentWrite), paymentHandler.Direct)

	// Order routes
	orders := protected.Group("/orders")
	orders.Get("/", middleware.HasPermission(models.PermissionPaymentRead), orderHandler.List)
	orders.Get("/:orderId", middleware.HasPermission(models.PermissionPaymentRead), orderHandler.Get)

	// Partner routes
	partners := protected.Group("/partners", requirePartner)
	partners.Get("/orders", middleware.HasPermission(models.PermissionPartnerRead), partnerHandler.Orders)
	partners.Get("/analytics", middleware.HasPermission(models.PermissionPartnerRead), partnerHandler.Analytics)
	partners.Post("/analytics/rebuild", middleware.HasPermission(models.PermissionPartnerWrite), partnerHandler.RebuildAnalytics)
	partners.Put("/discount-rate", middleware.HasPermission(models.PermissionPartnerWrite), partnerHandler.UpdateDiscountRate)
}
