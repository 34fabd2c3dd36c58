package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/swg-labs/smssend-api/api/swagger"
	"github.com/swg-labs/smssend-api/internal/billing"
	"github.com/swg-labs/smssend-api/internal/handler"
	"github.com/swg-labs/smssend-api/internal/mailer"
	"github.com/swg-labs/smssend-api/internal/middleware"
	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/repository"
	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/internal/service"
	"github.com/swg-labs/smssend-api/internal/smsapi"
	"github.com/swg-labs/smssend-api/pkg/cache"
	"github.com/swg-labs/smssend-api/pkg/config"
	"github.com/swg-labs/smssend-api/pkg/database"
	"github.com/swg-labs/smssend-api/pkg/jobs"
	"github.com/swg-labs/smssend-api/pkg/logger"
	corsmiddleware "github.com/swg-labs/smssend-api/pkg/middleware/cors"
	reqidmiddleware "github.com/swg-labs/smssend-api/pkg/middleware/requestid"
	"github.com/swg-labs/smssend-api/pkg/storage"
)

// @title smssend API
// @version 1.0.0
// @description Order import, review-request SMS dispatch, and billing for marketplace sellers
// @BasePath /api
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close()

	// Redis is an accelerator, not a dependency: listings fall back to
	// the database when it is down.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Orders.ExportDir)
	if err != nil {
		logr.Sugar().Fatalw("export storage unavailable", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Orders.SignedURLSecret, cfg.Orders.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	rateRepo := repository.NewRateLimitRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	smsRepo := repository.NewSmsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	hasher := security.NewPasswordHasher(cfg.Auth.PasswordPepper, security.DefaultArgon2Params)
	codec := security.NewTokenCodec(cfg.Auth)
	validate := validator.New()

	metricsSvc := service.NewMetricsService()
	limiter := service.NewRateLimiter(rateRepo, cfg.RateLimit, logr)
	mailSender := mailer.New(cfg.SMTP, cfg.AppBaseURL, logr)
	smsGateway := smsapi.New(cfg.SMS, logr)
	checkout := billing.New(cfg.Billing, logr)

	authSvc := service.NewAuthService(userRepo, tokenRepo, auditRepo, limiter, hasher, codec, metricsSvc, validate, logr, cfg.Auth)
	accountSvc := service.NewAccountService(userRepo, tokenRepo, auditRepo, limiter, hasher, codec, mailSender, validate, logr, cfg.Auth)
	resetSvc := service.NewPasswordResetService(userRepo, tokenRepo, auditRepo, limiter, hasher, codec, mailSender, validate, logr, cfg.Auth)
	orderSvc := service.NewOrderService(orderRepo, cacheRepo, auditRepo, store, signer, metricsSvc, validate, logr, cfg.Orders, cfg.APIPrefix)
	smsSvc := service.NewSmsService(orderRepo, smsRepo, userRepo, auditRepo, smsGateway, metricsSvc, validate, logr, cfg.SMS)
	billingSvc := service.NewBillingService(userRepo, auditRepo, checkout, store, signer, validate, logr, cfg.Billing, cfg.APIPrefix)
	userSvc := service.NewUserService(userRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("sms-dispatch", smsSvc.HandleDispatchJob, jobs.QueueConfig{
		Workers:    cfg.Dispatch.Workers,
		BufferSize: cfg.Dispatch.BufferSize,
		MaxRetries: cfg.Dispatch.MaxRetries,
		RetryDelay: cfg.Dispatch.RetryDelay,
		Logger:     logr,
	})
	smsSvc.BindQueue(queue)
	queue.Start(ctx)

	// Export files outlive their signed URLs by a day at most; sweep
	// the stale ones hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.CleanupOlderThan(24 * time.Hour)
				if err != nil {
					logr.Sugar().Warnw("export cleanup failed", "error", err)
					continue
				}
				if len(removed) > 0 {
					logr.Sugar().Infow("stale exports removed", "count", len(removed))
				}
			}
		}
	}()

	authHandler := handler.NewAuthHandler(authSvc, cfg.Auth)
	accountHandler := handler.NewAccountHandler(accountSvc)
	resetHandler := handler.NewPasswordResetHandler(resetSvc)
	orderHandler := handler.NewOrderHandler(orderSvc, store)
	smsHandler := handler.NewSmsHandler(smsSvc)
	billingHandler := handler.NewBillingHandler(billingSvc, store)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", accountHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/verify-email", accountHandler.VerifyEmail)
		auth.POST("/resend-verification", accountHandler.ResendVerification)
		auth.POST("/forgot-password", resetHandler.Forgot)
		auth.POST("/reset-password", resetHandler.Reset)
		auth.GET("/me", middleware.JWT(codec), authHandler.Me)
	}

	authed := api.Group("", middleware.JWT(codec))
	{
		authed.GET("/orders", orderHandler.List)
		authed.POST("/orders/import", orderHandler.Import)
		authed.POST("/orders/export", orderHandler.Export)
		authed.GET("/orders/export/:token", orderHandler.Download)

		authed.POST("/sms/dispatch", smsHandler.Dispatch)
		authed.GET("/sms/history", smsHandler.History)
		authed.GET("/sms/settings", smsHandler.GetSettings)
		authed.PUT("/sms/settings", smsHandler.UpdateSettings)

		authed.POST("/billing/checkout", billingHandler.Checkout)
		authed.POST("/billing/invoices", billingHandler.GenerateInvoice)
		authed.GET("/billing/invoices/:token", billingHandler.DownloadInvoice)
	}

	admin := api.Group("/users", middleware.JWT(codec), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("", userHandler.List)
		admin.GET("/:id", userHandler.Get)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
	queue.Stop()
}
