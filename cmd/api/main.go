package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace/internal/catalog"
	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/fraud"
	"marketplace/internal/gateway"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/monitor"
	"marketplace/internal/redis"
	"marketplace/internal/repository"
	"marketplace/internal/service/auth"
	"marketplace/internal/service/checkout"
	"marketplace/internal/service/dashboard"
	"marketplace/internal/service/order"
	"marketplace/internal/service/payment"
	"marketplace/internal/service/stock"
	"marketplace/internal/utils"
	"marketplace/pkg/log"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}
	config.GlobalConfig = cfg

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize logger")
	}

	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	if err := database.AutoMigrate(database.GetDB()); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to run migrations")
	}

	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Server.Mode,
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize tracer")
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	db := database.GetDB()
	redisClient := redis.GetClient()
	metrics := monitor.NewMetricsCollector()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentTransactionRepository(db)
	stockLogRepo := repository.NewStockLogRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	tempOrderRepo := repository.NewTempOrderRepository(redisClient)

	// Product cache
	productCatalog, err := catalog.NewCache(productRepo, cfg.Cache.TTL, cfg.Cache.BloomCapacity)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create product cache")
	}
	if err := productCatalog.Warm(context.Background()); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to warm product cache")
	}

	// Fraud gate
	var fraudStore fraud.Store
	retention := cfg.Fraud.IPWindow
	if cfg.Fraud.UserWindow > retention {
		retention = cfg.Fraud.UserWindow
	}
	if cfg.Fraud.Backend == "redis" {
		fraudStore = fraud.NewRedisStore(redisClient, retention)
	} else {
		fraudStore = fraud.NewMemoryStore(retention)
	}
	gate := fraud.NewGate(fraudStore, fraud.Config{
		IPWindow:   cfg.Fraud.IPWindow,
		IPLimit:    cfg.Fraud.IPLimit,
		UserWindow: cfg.Fraud.UserWindow,
		UserLimit:  cfg.Fraud.UserLimit,
	})

	// Gateway client
	gatewayClient := gateway.NewClient(cfg.Gateway)

	// Services
	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.Expire, cfg.Security.JWT.RefreshTTL)
	authService := auth.NewAuthService(userRepo, jwtManager)
	ledger := stock.NewLedger(productRepo, stockLogRepo, productCatalog, metrics)
	checkoutService := checkout.NewCheckoutService(
		productCatalog, tempOrderRepo, paymentRepo, gate, gatewayClient, metrics, cfg.Checkout.TempOrderTTL,
	)
	paymentService := payment.NewPaymentService(
		paymentRepo, orderRepo, tempOrderRepo, ledger, gatewayClient, payment.NewLogNotifier(), metrics,
	)
	orderService := order.NewOrderService(orderRepo)
	dashboardService := dashboard.NewDashboardService(statsRepo)

	router := setupRouter(cfg, metrics, authService, checkoutService, paymentService, orderService, dashboardService)

	// Stale transaction sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepLoop(sweepCtx, checkoutService, cfg.Checkout.SweepInterval)

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderMB << 20,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Server forced to shutdown")
	}

	if err := tracer.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Failed to shut down tracer")
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	metrics *monitor.MetricsCollector,
	authService auth.AuthService,
	checkoutService checkout.CheckoutService,
	paymentService payment.PaymentService,
	orderService order.OrderService,
	dashboardService dashboard.DashboardService,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(metrics))
	router.Use(middleware.Recovery())
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(cfg.Security.CORS.AllowOrigins))
	}
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	authHandler := handler.NewAuthHandler(authService)
	checkoutHandler := handler.NewCheckoutHandler(checkoutService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	orderHandler := handler.NewOrderHandler(orderService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	healthHandler := handler.NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Gateway callbacks authenticate via HMAC, not bearer tokens
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/payment", paymentHandler.PaymentWebhook)
		webhooks.POST("/shipment", paymentHandler.ShipmentWebhook)
	}

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		protected := api.Group("")
		protected.Use(middleware.Auth(authService.ValidateToken))
		{
			protected.POST("/checkout/cart", checkoutHandler.CartCheckout)
			protected.POST("/checkout/buy-now", checkoutHandler.BuyNow)

			protected.GET("/payments/:id", paymentHandler.GetTransaction)
			protected.POST("/payments/:id/cancel", paymentHandler.CancelPayment)

			protected.GET("/orders", orderHandler.ListMyOrders)
			protected.GET("/orders/:id", orderHandler.GetOrder)

			seller := protected.Group("/seller")
			seller.Use(middleware.RequireRole("seller", "admin"))
			{
				seller.GET("/orders", orderHandler.ListSellerOrders)
				seller.GET("/dashboard", dashboardHandler.SellerStats)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole("admin"))
			{
				admin.GET("/dashboard", dashboardHandler.AdminStats)
			}
		}
	}

	return router
}

// sweepLoop periodically cancels pending transactions whose staging window
// has expired
func sweepLoop(ctx context.Context, checkoutService checkout.CheckoutService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := checkoutService.SweepStaleTransactions(ctx); err != nil {
				log.WithFields(map[string]interface{}{
					"error": err.Error(),
				}).Error("Stale transaction sweep failed")
			}
		}
	}
}
