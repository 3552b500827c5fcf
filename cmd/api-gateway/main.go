package main

import (
	"context"
	"errors"
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

	_ "github.com/noah-isme/sma-admissions-api/api/swagger"
	"github.com/noah-isme/sma-admissions-api/internal/handler"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/database"
	"github.com/noah-isme/sma-admissions-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/requestid"
)

// @title SMA Admissions API
// @version 1.0.0
// @description Admission lifecycle engine: applications, waitlists, seat capacity, enrollment
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Admissions.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	validate := validator.New()

	waitlistRepo := repository.NewWaitlistRepository(db)
	applicationRepo := repository.NewApplicationRepository(db, waitlistRepo)
	capacityRepo := repository.NewCapacityRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, studentRepo, capacityRepo)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Admissions.CapacityCacheTTL, logr, cacheRepo != nil)
	waitlistSvc := service.NewWaitlistService(waitlistRepo, cfg.Admissions.OfferTTL, cfg.Admissions.SweeperEnabled, logr, metricsSvc)
	transitionSvc := service.NewTransitionService(applicationRepo, validate, logr, metricsSvc)
	capacitySvc := service.NewCapacityService(capacityRepo, waitlistSvc, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, applicationRepo, capacityRepo, validate, logr, metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweeper *service.OfferSweeper
	if cfg.Admissions.SweeperEnabled {
		sweeper = service.NewOfferSweeper(waitlistSvc, cfg.Admissions.SweepInterval, logr)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	applicationHandler := handler.NewApplicationHandler(transitionSvc, enrollmentSvc)
	waitlistHandler := handler.NewWaitlistHandler(waitlistSvc)
	capacityHandler := handler.NewCapacityHandler(capacitySvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		applications := api.Group("/applications")
		{
			applications.POST("", applicationHandler.Create)
			applications.GET("", applicationHandler.List)
			applications.GET("/:id", applicationHandler.Get)
			applications.GET("/:id/history", applicationHandler.History)
			applications.PUT("/:id/status", applicationHandler.ChangeStatus)
			applications.GET("/:id/offer-letter", applicationHandler.OfferLetter)
		}

		waitlist := api.Group("/waitlist")
		{
			waitlist.GET("/:class", waitlistHandler.List)
			waitlist.GET("/:class/export", waitlistHandler.Export)
		}

		capacity := api.Group("/class-capacity")
		{
			capacity.GET("", capacityHandler.List)
			capacity.GET("/rollup", capacityHandler.Rollup)
			capacity.GET("/:class/:section", capacityHandler.Get)
			capacity.PUT("/:class/:section", middleware.RequireRoles("admin", "registrar"), capacityHandler.Put)
			capacity.POST("/:class/:section/withdrawals", middleware.RequireRoles("admin", "registrar"), capacityHandler.Withdraw)
		}

		enrollments := api.Group("/enrollments")
		{
			enrollments.POST("", middleware.RequireRoles("admin", "registrar"), enrollmentHandler.Create)
			enrollments.GET("/next-roll-number", enrollmentHandler.NextRollNumber)
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
