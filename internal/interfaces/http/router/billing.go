package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/infrastructure/logger"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
	"github.com/mockly/billing/internal/interfaces/http/handler"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
)

// Handlers are the billing API handlers
type Handlers struct {
	Subscriptions  *handler.SubscriptionHandler
	PaymentMethods *handler.PaymentMethodHandler
	Payments       *handler.PaymentHandler
	Webhooks       *handler.WebhookHandler
	Admin          *handler.AdminHandler
	Health         *handler.HealthHandler
}

// Config wires cross-cutting concerns into the engine
type Config struct {
	ServiceName    string
	Logger         *zap.Logger
	Identity       middleware.IdentityConfig
	RequestTimeout time.Duration
	// TracingEnabled installs the otelgin server span middleware
	TracingEnabled bool
	TracingOptions []otelgin.Option
	// HTTPMetrics and MetricsHandler are optional; /metrics is served only
	// when MetricsHandler is set
	HTTPMetrics    *telemetry.HTTPMetrics
	MetricsHandler http.Handler
	// ProfilingLabels tags pprof samples with the matched route
	ProfilingLabels bool
	TrustedProxies  []string
	// RateLimiter throttles authenticated API calls per caller when set
	RateLimiter *middleware.RateLimiter
	// SwaggerEnabled serves the registered API docs under /swagger
	SwaggerEnabled bool
}

// NewEngine builds the gin engine with the middleware chain and every billing route
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	if cfg.TracingEnabled {
		engine.Use(middleware.Tracing(cfg.ServiceName, cfg.TracingOptions...))
	}
	engine.Use(logger.GinMiddleware(cfg.Logger))
	engine.Use(logger.Recovery(cfg.Logger))
	if cfg.TracingEnabled {
		engine.Use(middleware.SpanEnricher())
	}
	if cfg.HTTPMetrics != nil {
		engine.Use(middleware.Metrics(cfg.HTTPMetrics))
	}
	if cfg.ProfilingLabels {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.Secure())

	if h.Health != nil {
		engine.GET("/health", h.Health.Live)
		engine.GET("/health/ready", h.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	if cfg.SwaggerEnabled {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r := NewRouter(engine)
	r.RegisterUnversioned(webhookRoutes(h))
	for _, g := range apiRoutes(cfg, h) {
		r.Register(g)
	}
	r.Setup()

	return engine, nil
}

// webhookRoutes are called by the payment provider and carry no user identity
func webhookRoutes(h Handlers) *DomainGroup {
	return NewDomainGroup("webhooks", "/webhooks").
		POST("/portone", h.Webhooks.Handle)
}

func apiRoutes(cfg Config, h Handlers) []*DomainGroup {
	timeout := middleware.Timeout(cfg.RequestTimeout)
	caller := []gin.HandlerFunc{timeout, middleware.Identity(cfg.Identity)}
	if cfg.RateLimiter != nil {
		caller = append(caller, middleware.RateLimitByKey(cfg.RateLimiter, middleware.CallerKey))
	}

	subscriptions := NewDomainGroup("subscriptions", "/subscriptions").
		Use(caller...).
		POST("", h.Subscriptions.Create).
		GET("/me", h.Subscriptions.GetActive).
		POST("/:id/cancel", h.Subscriptions.Cancel).
		PUT("/:id/payment-method", h.Subscriptions.ChangePaymentMethod)

	methods := NewDomainGroup("payment-methods", "/payment-methods").
		Use(caller...).
		POST("", h.PaymentMethods.Add).
		GET("", h.PaymentMethods.List).
		DELETE("/:id", h.PaymentMethods.Delete).
		PUT("/:id/default", h.PaymentMethods.SetDefault)

	payments := NewDomainGroup("payments", "/payments").
		Use(caller...).
		GET("", h.Payments.List).
		GET("/:id", h.Payments.Get)

	invoices := NewDomainGroup("invoices", "/invoices").
		Use(caller...).
		GET("/:id", h.Payments.GetInvoice)

	// Internal hooks for the account service and operators
	users := NewDomainGroup("users", "/users").
		Use(timeout).
		POST("/:id/free-plan", h.Subscriptions.AssignFreePlan)

	admin := NewDomainGroup("admin", "/admin")
	admin.Group("outbox", "/outbox").GET("/stats", h.Admin.OutboxStats)
	admin.Group("sweeps", "/sweeps").POST("/past-due", h.Admin.RunPastDueSweep)

	return []*DomainGroup{subscriptions, methods, payments, invoices, users, admin}
}
