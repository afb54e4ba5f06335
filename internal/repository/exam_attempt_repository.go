package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamAttemptRepository struct {
	DB *gorm.DB
}

func NewExamAttemptRepository(db *gorm.DB) *ExamAttemptRepository {
	return &ExamAttemptRepository{DB: db}
}

func (r *ExamAttemptRepository) WithTx(tx *gorm.DB) *ExamAttemptRepository {
	return &ExamAttemptRepository{DB: tx}
}

func (r *ExamAttemptRepository) Create(ctx context.Context, attempt *model.ExamAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *ExamAttemptRepository) FindByID(ctx context.Context, id string) (*model.ExamAttempt, error) {
	return first[model.ExamAttempt](r.DB.WithContext(ctx).Where("id = ?", id))
}

// FindActive 当前进行中的尝试（active_key 唯一）
func (r *ExamAttemptRepository) FindActive(ctx context.Context, studentID uint, examID string) (*model.ExamAttempt, error) {
	return first[model.ExamAttempt](r.DB.WithContext(ctx).
		Where("active_key = ?", model.AttemptActiveKey(studentID, examID)))
}

func (r *ExamAttemptRepository) CountCompleted(ctx context.Context, studentID uint, examID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).
		Where("student_id = ? AND exam_id = ? AND completed = ?", studentID, examID, true).
		Count(&count).Error
	return count, err
}

// CountInProgressByExam 某考试下仍在作答中的尝试数
func (r *ExamAttemptRepository) CountInProgressByExam(ctx context.Context, examID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).
		Where("exam_id = ? AND completed = ? AND status = ?", examID, false, model.AttemptInProgress).
		Count(&count).Error
	return count, err
}

// DeleteIncompleteByExam 清理某学生在某考试下未完成的尝试（物理删除）
func (r *ExamAttemptRepository) DeleteIncompleteByExam(ctx context.Context, studentID uint, examID string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("student_id = ? AND exam_id = ? AND completed = ?", studentID, examID, false).
		Delete(&model.ExamAttempt{})
	return res.RowsAffected, res.Error
}

// DeleteIncompleteByCourse 清理某学生在某课程下所有未完成的尝试
func (r *ExamAttemptRepository) DeleteIncompleteByCourse(ctx context.Context, studentID uint, courseID string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND completed = ?", studentID, courseID, false).
		Delete(&model.ExamAttempt{})
	return res.RowsAffected, res.Error
}

// CompleteSubmission 条件更新：只有 completed = false 的尝试会被写入，返回是否写入成功。
// 并发重复交卷时只有一个请求能拿到 true
func (r *ExamAttemptRepository) CompleteSubmission(ctx context.Context, attempt *model.ExamAttempt) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).
		Where("id = ? AND completed = ? AND status = ?", attempt.ID, false, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"completed":          true,
			"status":             model.AttemptSubmitted,
			"active_key":         nil,
			"end_time":           attempt.EndTime,
			"answers":            attempt.Answers,
			"score":              attempt.Score,
			"time_taken_seconds": attempt.TimeTakenSeconds,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkExpired 将进行中的尝试标记为过期并释放 active_key
func (r *ExamAttemptRepository) MarkExpired(ctx context.Context, attemptID string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.ExamAttempt{}).
		Where("id = ? AND completed = ? AND status = ?", attemptID, false, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":     model.AttemptExpired,
			"active_key": nil,
			"end_time":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type StaleAttemptRow struct {
	ID        string
	StudentID uint
	ExamID    string
	StartTime time.Time
	Duration  int
}

// ListInProgressStartedBefore 按 (start_time, id) 键集分页列出开始时间早于 before 的进行中尝试及其考试时长；
// after 为上一页最后一行，首页传 nil
func (r *ExamAttemptRepository) ListInProgressStartedBefore(ctx context.Context, before time.Time, after *StaleAttemptRow, limit int) ([]StaleAttemptRow, error) {
	var rows []StaleAttemptRow
	q := r.DB.WithContext(ctx).Table("exam_attempts a").
		Select("a.id, a.student_id, a.exam_id, a.start_time, e.duration").
		Joins("JOIN exams e ON e.id = a.exam_id").
		Where("a.completed = ? AND a.status = ? AND a.start_time < ?", false, model.AttemptInProgress, before)
	if after != nil {
		q = q.Where("(a.start_time > ? OR (a.start_time = ? AND a.id > ?))", after.StartTime, after.StartTime, after.ID)
	}
	err := q.Order("a.start_time ASC, a.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *ExamAttemptRepository) ListByStudentExam(ctx context.Context, studentID uint, examID string) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND exam_id = ?", studentID, examID).
		Order("start_time DESC").
		Find(&attempts).Error
	return attempts, err
}
