package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/infrastructure/auth"
	"github.com/mockly/billing/internal/infrastructure/cache"
	"github.com/mockly/billing/internal/infrastructure/config"
	"github.com/mockly/billing/internal/infrastructure/event"
	"github.com/mockly/billing/internal/infrastructure/logger"
	"github.com/mockly/billing/internal/infrastructure/payment"
	"github.com/mockly/billing/internal/infrastructure/persistence"
	"github.com/mockly/billing/internal/infrastructure/scheduler"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
	"github.com/mockly/billing/internal/interfaces/http/handler"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
	"github.com/mockly/billing/internal/interfaces/http/router"

	_ "github.com/mockly/billing/docs"
)

//	@title			Billing API
//	@version		1.0
//	@description	Subscription billing service: plan purchases, recurring charges, stored payment methods and payment provider webhooks.
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.Telemetry.ServiceName,
		Env:     cfg.App.Env,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:               cfg.Telemetry.Enabled,
		CollectorEndpoint:     cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:         cfg.Telemetry.SamplingRatio,
		ServiceName:           cfg.Telemetry.ServiceName,
		Insecure:              cfg.Telemetry.Insecure,
		MetricsExportInterval: cfg.Telemetry.MetricsExportInterval,
		LogsEnabled:           cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Rebuild the logger so entries are also shipped through the OTLP log bridge
	log, err := logger.New(logCfg, providers.Logs.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", telemetry.ServiceVersion),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsRunning() && cfg.Telemetry.SpanProfilesEnabled {
		providers.Tracer.EnableSpanProfiles()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Database.SlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if err := telemetry.EnableDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBName:     cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}

	meter := providers.Meter.Meter(telemetry.TracerName)
	if sqlDB, err := db.DB.DB(); err == nil {
		if _, err := telemetry.RegisterDBPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Failed to register database pool metrics", zap.Error(err))
		}
	}

	registry := telemetry.NewRegistry()
	billingMetrics, err := telemetry.NewBillingMetrics(meter, registry)
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}
	httpMetrics, err := telemetry.NewHTTPMetrics(registry)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	gateway, err := payment.NewPortOneGateway(&payment.PortOneConfig{
		APISecret:  cfg.PortOne.APISecret,
		APIBase:    cfg.PortOne.APIBase,
		StoreID:    cfg.PortOne.StoreID,
		ChannelKey: cfg.PortOne.ChannelKey,
		Timeout:    cfg.PortOne.Timeout,
		Breaker: payment.BreakerConfig{
			Enabled:          cfg.PortOne.BreakerEnabled,
			FailureThreshold: cfg.PortOne.BreakerFailureThreshold,
			OpenTimeout:      cfg.PortOne.BreakerOpenTimeout,
		},
	}, payment.WithLogger(log.Named("portone")))
	if err != nil {
		log.Fatal("Failed to create payment gateway", zap.Error(err))
	}

	verifier, err := payment.NewPortOneWebhookVerifier(&payment.WebhookConfig{
		Secret:    cfg.PortOne.WebhookSecret,
		Tolerance: cfg.PortOne.WebhookTolerance,
	})
	if err != nil {
		log.Fatal("Failed to create webhook verifier", zap.Error(err))
	}

	dedup, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create webhook dedup store", zap.Error(err))
	}
	defer func() {
		_ = dedup.Close()
	}()

	// Application services
	txScope := persistence.NewGormTransactionScope(db.DB)
	schedules := appbilling.NewPaymentScheduleService(appbilling.PaymentScheduleServiceConfig{
		Gateway: gateway,
		Metrics: billingMetrics,
		Logger:  log,
	})
	subscriptionService := appbilling.NewSubscriptionService(appbilling.SubscriptionServiceConfig{
		TxScope:               txScope,
		Gateway:               gateway,
		Schedules:             schedules,
		Metrics:               billingMetrics,
		Logger:                log,
		PaymentMethodBlackout: cfg.Billing.PaymentMethodBlackout,
	})
	paymentMethodService := appbilling.NewPaymentMethodService(appbilling.PaymentMethodServiceConfig{
		TxScope: txScope,
		Gateway: gateway,
		Logger:  log,
	})
	paymentQueryService := appbilling.NewPaymentQueryService(txScope)
	reconciler := appbilling.NewWebhookReconciler(appbilling.WebhookReconcilerConfig{
		TxScope:        txScope,
		Gateway:        gateway,
		Verifier:       verifier,
		Schedules:      schedules,
		Idempotency:    dedup,
		IdempotencyTTL: cfg.Billing.WebhookDedupTTL,
		Metrics:        billingMetrics,
		Logger:         log,
	})
	expirationService := appbilling.NewExpirationService(appbilling.ExpirationServiceConfig{
		TxScope:     txScope,
		Gateway:     gateway,
		GracePeriod: cfg.Sweep.GracePeriod,
		BatchSize:   cfg.Sweep.BatchSize,
		Metrics:     billingMetrics,
		Logger:      log,
	})

	// Background workers
	outboxProcessor := event.NewOutboxProcessor(txScope, event.OutboxProcessorConfig{
		BatchSize:        cfg.Outbox.BatchSize,
		PollInterval:     cfg.Outbox.PollInterval,
		MaxRetries:       cfg.Outbox.MaxRetries,
		CleanupEnabled:   cfg.Outbox.CleanupEnabled,
		CleanupRetention: cfg.Outbox.CleanupRetention,
		CleanupInterval:  cfg.Outbox.CleanupInterval,
	}, billingMetrics, log.Named("outbox"))
	outboxProcessor.Register(billing.EventTypeScheduleCreate, subscriptionService.ProcessScheduleCreation)

	location, err := time.LoadLocation(cfg.Sweep.Timezone)
	if err != nil {
		log.Fatal("Invalid sweep timezone", zap.String("timezone", cfg.Sweep.Timezone), zap.Error(err))
	}
	sweepScheduler := scheduler.NewPastDueExpirationScheduler(expirationService, log.Named("sweep"),
		scheduler.PastDueExpirationSchedulerConfig{
			Enabled:    cfg.Sweep.Enabled,
			RunHour:    cfg.Sweep.RunHour,
			Location:   location,
			RunTimeout: cfg.Sweep.RunTimeout,
		})

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if cfg.Outbox.Enabled {
		if err := outboxProcessor.Start(workerCtx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}
	if err := sweepScheduler.Start(workerCtx); err != nil {
		log.Fatal("Failed to start past-due sweep scheduler", zap.Error(err))
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to configure validator", zap.Error(err))
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, cfg.HTTP.RateLimitBurst)
	}

	engine, err := router.NewEngine(router.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      log,
		Identity: middleware.IdentityConfig{
			JWTService:        auth.NewJWTService(cfg.JWT),
			AllowUserIDHeader: cfg.JWT.AllowUserIDHeader,
			Logger:            log,
		},
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		TracingEnabled:  providers.Tracer.IsEnabled(),
		TracingOptions:  []otelgin.Option{otelgin.WithFilter(skipHealthChecks)},
		HTTPMetrics:     httpMetrics,
		MetricsHandler:  telemetry.MetricsHandler(registry),
		ProfilingLabels: profiler.IsRunning(),
		TrustedProxies:  cfg.HTTP.TrustedProxies,
		RateLimiter:     limiter,
		SwaggerEnabled:  cfg.HTTP.SwaggerEnabled,
	}, router.Handlers{
		Subscriptions:  handler.NewSubscriptionHandler(subscriptionService),
		PaymentMethods: handler.NewPaymentMethodHandler(paymentMethodService),
		Payments:       handler.NewPaymentHandler(paymentQueryService),
		Webhooks:       handler.NewWebhookHandler(reconciler, cfg.HTTP.WebhookMaxBodySize),
		Admin:          handler.NewAdminHandler(outboxProcessor, sweepScheduler),
		Health:         handler.NewHealthHandler(db),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweepScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sweep scheduler", zap.Error(err))
	}
	if err := outboxProcessor.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping outbox processor", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// skipHealthChecks keeps health checks and scrapes out of traces
func skipHealthChecks(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/health/ready", "/metrics":
		return false
	}
	return true
}
