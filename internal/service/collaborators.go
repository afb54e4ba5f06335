package service

import (
	"context"
	"learnhub_backend/internal/model"
)

// 以下为考试模块依赖的外部协作方，只读

type ProgressProvider interface {
	CourseProgress(ctx context.Context, studentID uint, courseID string) (float64, error)
}

type CourseDirectory interface {
	FindCourse(ctx context.Context, courseID string) (*model.CourseInfo, error)
}

type StudentDirectory interface {
	FindStudent(ctx context.Context, studentID uint) (*model.StudentInfo, error)
}
