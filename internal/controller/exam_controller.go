package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Service *service.ExamService
}

func NewExamController(svc *service.ExamService) *ExamController {
	return &ExamController{Service: svc}
}

// @Summary 创建课程考试
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateExamReq true "考试信息"
// @Success 201 {object} util.Response
// @Router /api/teacher/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.CreateExam(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, exam)
}

// @Summary 审核前修改考试
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Param body body service.UpdateExamReq true "修改内容"
// @Success 200 {object} util.Response
// @Router /api/teacher/exams/{id} [put]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.UpdateExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.UpdateExam(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role, req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

// @Summary 获取考试详情（含答案）
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	exam, err := c.Service.GetExam(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

// @Summary 课程考试列表
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param includeArchived query bool false "是否包含已归档" default(true)
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/exams [get]
func (c *ExamController) ListCourseExams(ctx *gin.Context) {
	includeArchived := ctx.DefaultQuery("includeArchived", "true") != "false"

	exams, err := c.Service.ListByCourse(ctx.Request.Context(), ctx.Param("courseId"), includeArchived)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": exams, "total": len(exams)})
}

// @Summary 归档考试
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/exams/{id}/archive [post]
func (c *ExamController) ArchiveExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	exam, err := c.Service.ArchiveExam(ctx.Request.Context(), ctx.Param("id"), user.UserID, user.Role)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

// @Summary 审核通过考试
// @Tags 考试审核
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/admin/exams/{id}/approve [post]
func (c *ExamController) ApproveExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	exam, err := c.Service.ApproveExam(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}

type rejectExamReq struct {
	Reason string `json:"reason"`
}

// @Summary 驳回考试
// @Tags 考试审核
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Param body body rejectExamReq true "驳回原因"
// @Success 200 {object} util.Response
// @Router /api/admin/exams/{id}/reject [post]
func (c *ExamController) RejectExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req rejectExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.RejectExam(ctx.Request.Context(), ctx.Param("id"), user.UserID, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, exam)
}
