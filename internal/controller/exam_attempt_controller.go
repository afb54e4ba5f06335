package controller

import (
	"encoding/json"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamAttemptController struct {
	Eligibility *service.EligibilityService
	Attempts    *service.AttemptService
}

func NewExamAttemptController(eligibility *service.EligibilityService, attempts *service.AttemptService) *ExamAttemptController {
	return &ExamAttemptController{Eligibility: eligibility, Attempts: attempts}
}

// @Summary 检查考试资格
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/exams/eligibility/{courseId} [get]
func (c *ExamAttemptController) CheckEligibility(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	decision, err := c.Eligibility.CheckEligibility(ctx.Request.Context(), user.UserID, ctx.Param("courseId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, decision)
}

// @Summary 开始或继续考试
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param examId path string true "考试ID"
// @Success 201 {object} util.Response
// @Router /api/exams/{examId}/attempts [post]
func (c *ExamAttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	handle, err := c.Attempts.StartAttempt(ctx.Request.Context(), user.UserID, ctx.Param("examId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	if handle.Resumed {
		util.Success(ctx, handle)
		return
	}
	util.Created(ctx, handle)
}

type SubmitAttemptReq struct {
	// 按呈现顺序排列，每项为选项下标或下标数组
	Answers []json.RawMessage `json:"answers"`
}

// @Summary 提交考试
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "考试尝试ID"
// @Param body body SubmitAttemptReq true "答案"
// @Success 200 {object} util.Response
// @Router /api/exam-attempts/{attemptId}/submit [post]
func (c *ExamAttemptController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitAttemptReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Attempts.SubmitAttempt(ctx.Request.Context(), ctx.Param("attemptId"), user.UserID, req.Answers)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 我的考试成绩
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param examId path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/exams/{examId}/results [get]
func (c *ExamAttemptController) ListResults(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	results, err := c.Attempts.ListResults(ctx.Request.Context(), user.UserID, ctx.Param("examId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": results, "total": len(results)})
}
