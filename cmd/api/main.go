package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/bimbel-api/api/swagger"
	"github.com/noah-isme/bimbel-api/internal/handler"
	"github.com/noah-isme/bimbel-api/internal/middleware"
	"github.com/noah-isme/bimbel-api/internal/models"
	"github.com/noah-isme/bimbel-api/internal/repository"
	"github.com/noah-isme/bimbel-api/internal/service"
	"github.com/noah-isme/bimbel-api/pkg/cache"
	"github.com/noah-isme/bimbel-api/pkg/config"
	"github.com/noah-isme/bimbel-api/pkg/database"
	"github.com/noah-isme/bimbel-api/pkg/jobs"
	"github.com/noah-isme/bimbel-api/pkg/logger"
	"github.com/noah-isme/bimbel-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/bimbel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bimbel-api/pkg/middleware/requestid"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

// @title Bimbel API
// @version 1.0.0
// @description Tutoring platform backend
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Guidelines.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare guideline storage", "error", err)
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	requestRepo := repository.NewClassRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	guidelineRepo := repository.NewGuidelineRepository(db)
	otpRepo := repository.NewOTPRepository(redisClient, cfg.OTP.TTL)

	// Services.
	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)

	mail := mailer.New(cfg.Mail, logr)
	authSvc := service.NewAuthService(userRepo, otpRepo, mail, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "bimbel-api",
		Audience:           []string{"bimbel-clients"},
		OTPDigits:          cfg.OTP.Digits,
	})

	studentSvc := service.NewStudentService(studentRepo, userRepo, notificationSvc, userRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, studentRepo, validate, logr)
	requestSvc := service.NewClassRequestService(requestRepo, studentRepo, classRepo, notificationSvc, userRepo, validate, logr)
	guidelineSvc := service.NewGuidelineService(
		guidelineRepo,
		store,
		storage.NewSignedURLSigner(cfg.Guidelines.SignedURLSecret, cfg.Guidelines.SignedURLTTL),
		cfg.Guidelines.MaxFileSizeBytes,
		validate,
		logr,
	)
	metricsSvc := service.NewMetricsService()

	queueCtx, queueCancel := context.WithCancel(context.Background())
	notificationSvc.Start(queueCtx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	classHandler := handler.NewClassHandler(classSvc)
	requestHandler := handler.NewClassRequestHandler(requestSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	guidelineHandler := handler.NewGuidelineHandler(guidelineSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	students := api.Group("/students")
	{
		students.POST("/register", studentHandler.Register)

		authed := students.Group("", middleware.JWT(authSvc))
		authed.GET("/me", middleware.RequireRoles(models.RoleStudent), studentHandler.Me)
		authed.PUT("/me", middleware.RequireRoles(models.RoleStudent), studentHandler.UpdateMe)
		authed.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTutor), studentHandler.List)
		authed.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTutor), studentHandler.Get)
		authed.POST("/:id/review",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionStudentReview, "student"),
			studentHandler.Review)
	}

	classes := api.Group("/classes", middleware.JWT(authSvc))
	{
		classes.GET("", classHandler.List)
		classes.GET("/mine", middleware.RequireRoles(models.RoleStudent), classHandler.MyClasses)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", middleware.RequireRoles(models.RoleAdmin), classHandler.Create)
		classes.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), classHandler.Update)
		classes.GET("/:id/roster", middleware.RequireRoles(models.RoleAdmin, models.RoleTutor), classHandler.Roster)
		classes.GET("/:id/roster/export", middleware.RequireRoles(models.RoleAdmin, models.RoleTutor), classHandler.ExportRoster)
	}

	requests := api.Group("/requests", middleware.JWT(authSvc))
	{
		requests.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.Create)
		requests.GET("/mine", middleware.RequireRoles(models.RoleStudent), requestHandler.ListMine)
		requests.DELETE("/:id", middleware.RequireRoles(models.RoleStudent), requestHandler.Delete)

		admin := requests.Group("", middleware.RequireRoles(models.RoleAdmin))
		admin.GET("", requestHandler.List)
		admin.POST("/:id/approve", requestHandler.Approve)
		admin.POST("/:id/reject", requestHandler.Reject)
		admin.PUT("/:id/status", requestHandler.ChangeStatus)
		admin.POST("/approve-all", requestHandler.ApproveAll)
	}

	api.DELETE("/admin/requests/:id",
		middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin),
		requestHandler.AdminDelete)

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	guidelines := api.Group("/guidelines")
	{
		guidelines.GET("/download", guidelineHandler.Download)

		authed := guidelines.Group("", middleware.JWT(authSvc))
		authed.GET("/folders", guidelineHandler.ListFolders)
		authed.GET("/folders/:id/files", guidelineHandler.ListFiles)
		authed.GET("/files/:id/download-link", guidelineHandler.DownloadLink)

		admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleTutor))
		admin.POST("/folders", guidelineHandler.CreateFolder)
		admin.PUT("/folders/:id", guidelineHandler.UpdateFolder)
		admin.DELETE("/folders/:id", guidelineHandler.DeleteFolder)
		admin.POST("/folders/:id/files", guidelineHandler.UploadFile)
		admin.DELETE("/files/:id", guidelineHandler.DeleteFile)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	queueCancel()
	notificationSvc.Stop()
	logr.Sugar().Infow("server stopped")
}
