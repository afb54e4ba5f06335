package app

import (
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())
	router.NoRoute(util.NotFound)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)

		// 管理员相关接口
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	exams := group.Group("/exams")
	{
		exams.GET("/eligibility/:courseId", c.attempt.CheckEligibility)
		exams.POST("/:examId/attempts", c.attempt.StartAttempt)
		exams.GET("/:examId/results", c.attempt.ListResults)
	}

	group.POST("/exam-attempts/:attemptId/submit", c.attempt.SubmitAttempt)

	certificates := group.Group("/certificates")
	{
		certificates.GET("", c.certificate.ListMine)
		certificates.GET("/:certificateId", c.certificate.GetCertificate)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/exams", c.exam.CreateExam)
		teacher.GET("/exams/:id", c.exam.GetExam)
		teacher.PUT("/exams/:id", c.exam.UpdateExam)
		teacher.POST("/exams/:id/archive", c.exam.ArchiveExam)
		teacher.GET("/courses/:courseId/exams", c.exam.ListCourseExams)
	}
}

func (a *App) registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/exams/:id/approve", c.exam.ApproveExam)
		admin.POST("/exams/:id/reject", c.exam.RejectExam)
		admin.DELETE("/certificates/:certificateId", c.certificate.RevokeCertificate)
	}
}
