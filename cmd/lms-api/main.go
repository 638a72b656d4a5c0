package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-lms-api/api/swagger"
	"github.com/noah-isme/sma-lms-api/internal/handler"
	"github.com/noah-isme/sma-lms-api/internal/repository"
	"github.com/noah-isme/sma-lms-api/internal/router"
	"github.com/noah-isme/sma-lms-api/internal/service"
	"github.com/noah-isme/sma-lms-api/pkg/cache"
	"github.com/noah-isme/sma-lms-api/pkg/config"
	"github.com/noah-isme/sma-lms-api/pkg/database"
	"github.com/noah-isme/sma-lms-api/pkg/logger"
	"github.com/noah-isme/sma-lms-api/pkg/storage"
)

// @title School LMS API
// @version 1.0.0
// @description Sessions, classes, students, promotions, monthly fees, exams and dashboards.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close() //nolint:errcheck
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	feeStructureRepo := repository.NewFeeStructureRepository(db)
	examRepo := repository.NewExamRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)

	regenerator := service.NewFeeRegenerator(feeStructureRepo, feeRepo, cfg.Fees.DueDay)
	signer := storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "sma-lms-api",
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, cacheSvc, auditRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, sessionRepo, userRepo, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, classRepo, sessionRepo, feeRepo, regenerator, db, cacheSvc, auditRepo, validate, logr)
	promotionSvc := service.NewPromotionService(promotionRepo, studentRepo, classRepo, sessionRepo, regenerator, db, cacheSvc, metrics, auditRepo, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, classRepo, sessionRepo, regenerator, db, signer, cacheSvc, metrics, auditRepo, validate, logr, service.FeeServiceConfig{
		SchoolName:    cfg.Receipts.SchoolName,
		ReceiptPrefix: cfg.APIPrefix,
	})
	feeStructureSvc := service.NewFeeStructureService(feeStructureRepo, classRepo, auditRepo, validate, logr, cfg.Fees.Currency)
	examSvc := service.NewExamService(examRepo, classRepo, studentRepo, db, auditRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, promotionRepo, sessionRepo, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	engine := router.New(router.Deps{
		Config:   cfg,
		Logger:   logr,
		Tokens:   authSvc,
		Audit:    auditRepo,
		Observer: metrics,
	}, router.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Sessions:   handler.NewSessionHandler(sessionSvc),
		Classes:    handler.NewClassHandler(classSvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Promotions: handler.NewPromotionHandler(promotionSvc),
		Fees:       handler.NewFeeHandler(feeSvc, feeStructureSvc),
		Exams:      handler.NewExamHandler(examSvc),
		Dashboard:  handler.NewDashboardHandler(dashboardSvc),
		Metrics:    handler.NewMetricsHandler(metrics.Handler(), checks),
	})

	var sweeper *service.FeeSweeper
	if cfg.Fees.SweeperEnabled {
		sweeper = service.NewFeeSweeper(feeSvc, metrics, logr, service.FeeSweeperConfig{
			Schedule:   cfg.Fees.OverdueSchedule,
			MaxRetries: cfg.Fees.SweeperRetries,
			RetryDelay: cfg.Fees.SweeperDelay,
		})
		if err := sweeper.Start(ctx); err != nil {
			logr.Fatal("failed to start fee sweeper", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	logr.Info("server stopped")
}
