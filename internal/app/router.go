package app

import (
	"learnhub_backend/docs"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)

		// 管理员相关接口
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	// 提交按用户限流
	submitLimit := security.RateLimiterBy(30, time.Minute, security.UserOrIP)

	assessments := group.Group("/assessments")
	{
		assessments.POST("/:id/start", c.progress.StartAssessment)
		assessments.POST("/:id/submissions", submitLimit, c.submission.Submit)
		assessments.PUT("/:id/draft", c.submission.SaveDraft)
		assessments.GET("/:id/submissions", c.submission.ListMine)
	}

	group.GET("/submissions/:id", c.submission.Get)

	lessons := group.Group("/lessons")
	{
		lessons.POST("/:id/start", c.progress.StartLesson)
		lessons.POST("/:id/complete", c.progress.CompleteLesson)
	}

	group.GET("/courses/:id/progress", c.progress.GetCourseProgress)
	group.GET("/progress", c.progress.ListMine)

	programs := group.Group("/programs")
	{
		programs.GET("/:id/enrollment", c.enrollment.GetEnrollment)
		programs.GET("/:id/certificate", c.enrollment.GetCertificate)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		teacher.POST("/submissions/:id/grade", c.submission.Grade)
	}
}

func (a *App) registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.DELETE("/certificates/:id", c.enrollment.RevokeCertificate)
	}
}
