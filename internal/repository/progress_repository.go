package repository

import (
	"context"
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// CourseProgress 返回课程完成百分比；没有进度记录视为 0
func (r *ProgressRepository) CourseProgress(ctx context.Context, studentID uint, courseID string) (float64, error) {
	p, err := first[model.CourseProgress](r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID))
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}
	return p.Percent, nil
}

// Upsert 由进度服务同步写入
func (r *ProgressRepository) Upsert(ctx context.Context, studentID uint, courseID string, percent float64) error {
	existing, err := first[model.CourseProgress](r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID))
	if err != nil {
		return err
	}
	if existing == nil {
		return r.DB.WithContext(ctx).Create(&model.CourseProgress{
			StudentID: studentID,
			CourseID:  courseID,
			Percent:   percent,
		}).Error
	}
	existing.Percent = percent
	return r.DB.WithContext(ctx).Save(existing).Error
}
