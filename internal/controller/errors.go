package controller

import (
	"errors"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/lock"
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusFor 把业务错误映射为 HTTP 状态码；未识别的错误视为基础设施故障
func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrValidation),
		errors.Is(err, util.ErrDuplicateExam),
		errors.Is(err, util.ErrExamNotEditable),
		errors.Is(err, util.ErrAttemptAlreadySubmitted):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrAlreadyCertified),
		errors.Is(err, util.ErrAlreadyPassed),
		errors.Is(err, util.ErrNotAttemptOwner),
		errors.Is(err, util.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, util.ErrExamNotFound),
		errors.Is(err, util.ErrExamNotAvailable),
		errors.Is(err, util.ErrAttemptNotFound),
		errors.Is(err, util.ErrAttemptExpired),
		errors.Is(err, util.ErrStaleSessionCertified),
		errors.Is(err, util.ErrCertificateNotFound),
		errors.Is(err, util.ErrCourseNotFound),
		errors.Is(err, util.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLockTimeout),
		errors.Is(err, util.ErrExamChanged):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.LogInternalError(ctx, err)
		return
	}

	var detailed *service.DetailedError
	if errors.As(err, &detailed) && detailed.Details != nil {
		util.ErrorWithData(ctx, status, err.Error(), detailed.Details)
		return
	}
	util.Error(ctx, status, err.Error())
}
