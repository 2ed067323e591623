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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-warning-api/api/swagger"
	"github.com/noah-isme/sma-warning-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-warning-api/internal/middleware"
	"github.com/noah-isme/sma-warning-api/internal/models"
	"github.com/noah-isme/sma-warning-api/internal/repository"
	"github.com/noah-isme/sma-warning-api/internal/service"
	"github.com/noah-isme/sma-warning-api/pkg/cache"
	"github.com/noah-isme/sma-warning-api/pkg/config"
	"github.com/noah-isme/sma-warning-api/pkg/database"
	"github.com/noah-isme/sma-warning-api/pkg/jobs"
	"github.com/noah-isme/sma-warning-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-warning-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-warning-api/pkg/middleware/requestid"
)

// @title SMA Early Warning API
// @version 1.0.0
// @description Student risk detection, alert lifecycle and risk insight endpoints
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Warnings.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, warning cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	app := buildApp(cfg, db, redisClient, metricsSvc, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.ResponseMeta())

	ops := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Warnings.Enabled {
		if seeded, err := app.rules.SeedSystemRules(ctx, cfg.Warnings.SystemRulesFile); err != nil {
			logr.Error("failed to seed system warning rules", zap.Error(err))
		} else if seeded > 0 {
			logr.Info("system warning rules ready", zap.Int("count", seeded))
		}

		app.queue.Start(ctx)
		defer app.queue.Stop()
		app.scheduler.Start(ctx)
		defer app.scheduler.Stop()

		registerWarningRoutes(r.Group(cfg.APIPrefix), app, ops, service.NewTokenService(service.TokenConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
		}), logr)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "warnings_enabled", cfg.Warnings.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type warningApp struct {
	rules      *service.RuleService
	alerts     *service.AlertService
	detection  *service.DetectionService
	statistics *service.StatisticsService
	profiles   *service.RiskProfileService
	scheduler  *service.DetectionScheduler
	queue      *jobs.Queue
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, metricsSvc *service.MetricsService, logr *zap.Logger) *warningApp {
	wc := cfg.Warnings

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, wc.CacheTTL, logr, wc.CacheEnabled && redisClient != nil)

	ruleRepo := repository.NewRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	runRepo := repository.NewDetectionRunRepository(db)
	sourceRepo := repository.NewMetricSourceRepository(db)

	rules := service.NewRuleService(ruleRepo, validator.New(), cacheSvc, logr)
	alerts := service.NewAlertService(alertRepo, cacheSvc, metricsSvc, logr, service.AlertServiceConfig{
		BatchConcurrency: wc.BatchConcurrency,
		StoreTimeout:     wc.StoreTimeout,
	})
	provider := service.NewMetricProvider(sourceRepo, service.MetricProviderConfig{
		DefaultWindowDays: wc.DefaultWindowDays,
		FailureRatio:      wc.BreakerFailureRatio,
		BreakerTimeout:    wc.BreakerTimeout,
	}, metricsSvc, logr)
	detection := service.NewDetectionService(studentRepo, rules, provider, alerts, runRepo, metricsSvc, logr, service.DetectionConfig{
		Concurrency:  wc.DetectionConcurrency,
		StoreTimeout: wc.StoreTimeout,
	})

	interval := time.Duration(0)
	if wc.ScheduleEnabled {
		interval = wc.ScheduleInterval
	}
	scheduler := service.NewDetectionScheduler(detection, interval, logr)
	queue := jobs.NewQueue("warning-detection", scheduler.Handle, jobs.QueueConfig{
		Workers:    wc.QueueWorkers,
		MaxRetries: wc.QueueRetries,
		RetryDelay: 30 * time.Second,
		Logger:     logr,
	})
	scheduler.AttachQueue(queue)

	return &warningApp{
		rules:      rules,
		alerts:     alerts,
		detection:  detection,
		statistics: service.NewStatisticsService(alertRepo, cacheSvc, logr, wc.StoreTimeout),
		profiles:   service.NewRiskProfileService(alertRepo, studentRepo, cacheSvc, logr, wc.StoreTimeout),
		scheduler:  scheduler,
		queue:      queue,
	}
}

func registerWarningRoutes(api *gin.RouterGroup, app *warningApp, ops *handler.MetricsHandler, tokens *service.TokenService, logr *zap.Logger) {
	ruleHandler := handler.NewRuleHandler(app.rules)
	alertHandler := handler.NewAlertHandler(app.alerts)
	detectionHandler := handler.NewDetectionHandler(app.detection, app.scheduler)
	insightHandler := handler.NewInsightHandler(app.statistics, app.profiles)

	managers := internalmiddleware.RequireRoles(models.RuleManagerRoles()...)
	staff := internalmiddleware.RequireRoles(models.AlertStaffRoles()...)

	warnings := api.Group("/warnings")
	warnings.Use(internalmiddleware.JWT(tokens))

	rules := warnings.Group("/rules")
	rules.GET("", staff, ruleHandler.List)
	rules.GET("/:id", staff, ruleHandler.Get)
	rules.POST("", managers, internalmiddleware.Audit(logr, "create", "warning_rule"), ruleHandler.Create)
	rules.PUT("/:id", managers, internalmiddleware.Audit(logr, "update", "warning_rule"), ruleHandler.Update)
	rules.PATCH("/:id/active", managers, internalmiddleware.Audit(logr, "toggle", "warning_rule"), ruleHandler.SetActive)
	rules.DELETE("/:id", managers, internalmiddleware.Audit(logr, "delete", "warning_rule"), ruleHandler.Delete)

	warnings.POST("/detect", managers, internalmiddleware.Audit(logr, "detect", "warning_run"), detectionHandler.Detect)
	warnings.GET("/runs", managers, detectionHandler.Runs)
	warnings.GET("/system", managers, ops.System)

	alerts := warnings.Group("/alerts")
	alerts.GET("", staff, alertHandler.List)
	alerts.POST("/batch", staff, internalmiddleware.Audit(logr, "batch", "warning_alert"), alertHandler.Batch)
	alerts.GET("/:id", staff, alertHandler.Get)
	alerts.POST("/:id/acknowledge", staff, internalmiddleware.Audit(logr, "acknowledge", "warning_alert"), alertHandler.Acknowledge)
	alerts.POST("/:id/resolve", staff, internalmiddleware.Audit(logr, "resolve", "warning_alert"), alertHandler.Resolve)
	alerts.POST("/:id/dismiss", staff, internalmiddleware.Audit(logr, "dismiss", "warning_alert"), alertHandler.Dismiss)

	warnings.GET("/statistics", staff, insightHandler.Statistics)
	warnings.GET("/students/:id/profile", staff, insightHandler.Profile)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
