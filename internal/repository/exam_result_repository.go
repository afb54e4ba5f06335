package repository

import (
	"context"
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
)

// ExamResultRepository 评分记录只追加，不提供更新与删除
type ExamResultRepository struct {
	DB *gorm.DB
}

func NewExamResultRepository(db *gorm.DB) *ExamResultRepository {
	return &ExamResultRepository{DB: db}
}

func (r *ExamResultRepository) WithTx(tx *gorm.DB) *ExamResultRepository {
	return &ExamResultRepository{DB: tx}
}

func (r *ExamResultRepository) Create(ctx context.Context, result *model.ExamResult) error {
	return r.DB.WithContext(ctx).Create(result).Error
}

// FindPass 返回该学生在该考试下分数最高的通过记录
func (r *ExamResultRepository) FindPass(ctx context.Context, studentID uint, examID string) (*model.ExamResult, error) {
	return first[model.ExamResult](r.DB.WithContext(ctx).
		Where("student_id = ? AND exam_id = ? AND status = ?", studentID, examID, model.ResultPass).
		Order("score DESC"))
}

func (r *ExamResultRepository) ListByStudentExam(ctx context.Context, studentID uint, examID string) ([]model.ExamResult, error) {
	var results []model.ExamResult
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND exam_id = ?", studentID, examID).
		Order("created_at DESC").
		Find(&results).Error
	return results, err
}

func (r *ExamResultRepository) CountByAttempt(ctx context.Context, attemptID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamResult{}).Where("attempt_id = ?", attemptID).Count(&count).Error
	return count, err
}
