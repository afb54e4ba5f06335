package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Create(exam).Error
}

func (r *ExamRepository) Save(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Save(exam).Error
}

func (r *ExamRepository) FindByID(ctx context.Context, id string) (*model.Exam, error) {
	return first[model.Exam](r.DB.WithContext(ctx).Where("id = ?", id))
}

// FindSelectableByCourse 学生可参加的考试：未归档，优先 approved，其次 pending；同状态取最新
func (r *ExamRepository) FindSelectableByCourse(ctx context.Context, courseID string) (*model.Exam, error) {
	return first[model.Exam](r.DB.WithContext(ctx).
		Where("course_id = ? AND archived = ? AND approval_status IN ?", courseID, false,
			[]string{string(model.ApprovalApproved), string(model.ApprovalPending)}).
		Order("CASE WHEN approval_status = 'approved' THEN 0 ELSE 1 END, created_at DESC"))
}

func (r *ExamRepository) ExistsActiveForCourse(ctx context.Context, courseID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Exam{}).
		Where("course_id = ? AND archived = ?", courseID, false).
		Count(&count).Error
	return count > 0, err
}

func (r *ExamRepository) ListByCourse(ctx context.Context, courseID string, includeArchived bool) ([]model.Exam, error) {
	var exams []model.Exam
	q := r.DB.WithContext(ctx).Where("course_id = ?", courseID)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	err := q.Order("created_at DESC").Find(&exams).Error
	return exams, err
}

// Archive 归档并释放课程唯一键，之后该课程可以创建新考试
func (r *ExamRepository) Archive(ctx context.Context, exam *model.Exam, at time.Time) error {
	exam.Archived = true
	exam.ArchivedAt = &at
	exam.ActiveCourseKey = nil
	return r.DB.WithContext(ctx).Model(exam).Select("archived", "archived_at", "active_course_key").Updates(exam).Error
}
