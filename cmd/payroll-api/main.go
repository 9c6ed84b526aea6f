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
	"go.uber.org/zap"

	_ "github.com/Mentrauz/OpenRoll-sub000/api/swagger"
	"github.com/Mentrauz/OpenRoll-sub000/internal/handler"
	"github.com/Mentrauz/OpenRoll-sub000/internal/middleware"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	"github.com/Mentrauz/OpenRoll-sub000/internal/repository"
	"github.com/Mentrauz/OpenRoll-sub000/internal/service"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/cache"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/config"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/database"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/logger"
	corsmiddleware "github.com/Mentrauz/OpenRoll-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/Mentrauz/OpenRoll-sub000/pkg/middleware/requestid"
)

// @title OpenRoll API
// @version 1.0.0
// @description Payroll back-office API with a change-approval workflow
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	changeRepo := repository.NewChangeRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "openroll-api",
	})

	appliers := map[models.TargetEntity]service.ChangeApplier{
		models.EntityEmployee:   service.NewEmployeeChangeApplier(employeeRepo, logr),
		models.EntityUnit:       service.NewUnitChangeApplier(unitRepo, logr),
		models.EntityAttendance: service.NewAttendanceChangeApplier(attendanceRepo, logr),
	}
	changeSvc := service.NewChangeService(changeRepo, userRepo, cacheRepo, appliers, cfg.Workflow, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(changeRepo, userRepo, cfg.Exports, cfg.Workflow, logr)
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	changeHandler := handler.NewChangeHandler(changeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authProtected := auth.Group("")
	authProtected.Use(middleware.JWT(authSvc))
	authProtected.POST("/logout", authHandler.Logout)
	authProtected.POST("/change-password", authHandler.ChangePassword)
	authProtected.GET("/me", authHandler.Me)

	changes := api.Group("/changes")
	changes.Use(middleware.JWT(authSvc))
	changes.POST("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleDataOps), changeHandler.Submit)
	changes.GET("", middleware.Audit(userRepo, models.AuditActionRegisterView, "changes"), changeHandler.List)
	changes.GET("/stats", changeHandler.Stats)
	changes.GET("/:id", changeHandler.Get)
	changes.POST("/:id/approve", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), changeHandler.Approve)
	changes.POST("/:id/reject", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), changeHandler.Reject)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		exports.Use(middleware.JWT(authSvc))
		exports.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleDataOps))
		exports.POST("", exportHandler.Create)
		exports.GET("/:id", exportHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
