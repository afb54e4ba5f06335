package util

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCourseNotFound   = errors.New("course not found")

	// 考试定义
	ErrValidation       = errors.New("validation failed")
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrDuplicateExam    = errors.New("course already has an active exam")
	ErrExamNotEditable  = errors.New("exam can no longer be edited")

	// 考试尝试
	ErrAlreadyCertified        = errors.New("already certified for this course")
	ErrAlreadyPassed           = errors.New("exam already passed, retakes are not allowed")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptExpired          = errors.New("attempt expired")
	ErrStaleSessionCertified   = errors.New("this exam session is stale, you are already certified")
	ErrNotAttemptOwner         = errors.New("attempt belongs to another student")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrExamChanged             = errors.New("exam questions changed during the attempt, please start again")

	// 证书
	ErrCertificateNotFound = errors.New("certificate not found")
)
