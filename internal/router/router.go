package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/handler"
	"github.com/noah-isme/sma-lms-api/internal/middleware"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/config"
	"github.com/noah-isme/sma-lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-lms-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth       *handler.AuthHandler
	Users      *handler.UserHandler
	Sessions   *handler.SessionHandler
	Classes    *handler.ClassHandler
	Students   *handler.StudentHandler
	Promotions *handler.PromotionHandler
	Fees       *handler.FeeHandler
	Exams      *handler.ExamHandler
	Dashboard  *handler.DashboardHandler
	Metrics    *handler.MetricsHandler
}

// Deps carries the cross-cutting collaborators of the middleware chain.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Tokens   middleware.TokenValidator
	Audit    middleware.AuditSink
	Observer middleware.RequestObserver
}

// New builds the gin engine with ops endpoints at the root and the API under the configured prefix.
func New(deps Deps, h Handlers) *gin.Engine {
	cfg := deps.Config
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(deps.Observer))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/receipts/:token", h.Fees.Receipt)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Tokens))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}

	authed.GET("/auth/me", h.Auth.Me)

	users := authed.Group("/users", admin)
	users.GET("", h.Users.List)
	users.GET("/:id", h.Users.Get)
	users.POST("", h.Users.Create)
	users.PUT("/:id", h.Users.Update)
	users.DELETE("/:id", h.Users.Deactivate)

	sessions := authed.Group("/sessions")
	sessions.GET("", staff, h.Sessions.List)
	sessions.GET("/active", staff, h.Sessions.Active)
	sessions.GET("/:id", staff, h.Sessions.Get)
	sessions.POST("", admin, audit(models.AuditActionSessionWrite, "session"), h.Sessions.Create)
	sessions.PUT("/:id", admin, audit(models.AuditActionSessionWrite, "session"), h.Sessions.Update)
	sessions.DELETE("/:id", admin, audit(models.AuditActionSessionWrite, "session"), h.Sessions.Delete)
	sessions.POST("/:id/activate", admin, h.Sessions.Activate)

	classes := authed.Group("/classes")
	classes.GET("", staff, h.Classes.List)
	classes.GET("/:id", staff, h.Classes.Get)
	classes.POST("", admin, audit(models.AuditActionClassWrite, "class"), h.Classes.Create)
	classes.PUT("/:id", admin, audit(models.AuditActionClassWrite, "class"), h.Classes.Update)
	classes.DELETE("/:id", admin, audit(models.AuditActionClassWrite, "class"), h.Classes.Delete)

	students := authed.Group("/students")
	students.GET("", staff, h.Students.List)
	students.GET("/:id", staff, h.Students.Get)
	students.POST("", admin, audit(models.AuditActionStudentWrite, "student"), h.Students.Create)
	students.PUT("/:id", admin, audit(models.AuditActionStudentWrite, "student"), h.Students.Update)
	students.PUT("/:id/class", admin, h.Students.ChangeClass)
	students.PUT("/:id/status", admin, audit(models.AuditActionStudentWrite, "student"), h.Students.UpdateStatus)

	promotions := authed.Group("/promotions")
	promotions.POST("/assign", staff, h.Promotions.Assign)
	promotions.GET("/session/:id", staff, h.Promotions.ListBySession)
	promotions.POST("/execute", admin, h.Promotions.Execute)

	fees := authed.Group("/fees")
	fees.GET("/students/:id", staff, h.Fees.Catalog)
	fees.GET("/students/:id/export", staff, h.Fees.Export)
	fees.POST("/students/:id/generate", admin, h.Fees.Generate)
	fees.POST("/:feeId/pay", admin, h.Fees.Pay)

	structures := authed.Group("/fee-structures")
	structures.GET("", staff, h.Fees.ListStructures)
	structures.PUT("/class/:classId", admin, h.Fees.UpsertStructure)

	authed.GET("/class-exams/class/:id", staff, h.Exams.ClassExams)
	exams := authed.Group("/exams")
	exams.GET("/class/:id", staff, h.Exams.ListByClass)
	exams.PUT("/sync/class/:id", admin, h.Exams.SyncClassExams)
	exams.POST("", admin, h.Exams.Create)
	exams.POST("/:id/marks", staff, h.Exams.UploadMarks)
	exams.GET("/:id/results", staff, h.Exams.Results)

	dashboard := authed.Group("/dashboard")
	dashboard.GET("/admin", admin, h.Dashboard.Admin)
	dashboard.GET("/teacher", staff, h.Dashboard.Teacher)

	return r
}
