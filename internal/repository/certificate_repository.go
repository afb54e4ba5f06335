package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) WithTx(tx *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: tx}
}

func (r *CertificateRepository) Create(ctx context.Context, cert *model.Certificate) error {
	return r.DB.WithContext(ctx).Create(cert).Error
}

func (r *CertificateRepository) FindByStudentCourse(ctx context.Context, studentID uint, courseID string) (*model.Certificate, error) {
	return first[model.Certificate](r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID))
}

func (r *CertificateRepository) FindByCertificateID(ctx context.Context, certificateID string) (*model.Certificate, error) {
	return first[model.Certificate](r.DB.WithContext(ctx).Where("certificate_id = ?", certificateID))
}

func (r *CertificateRepository) ExistsForStudent(ctx context.Context, studentID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Certificate{}).Where("student_id = ?", studentID).Count(&count).Error
	return count > 0, err
}

func (r *CertificateRepository) CertificateIDTaken(ctx context.Context, certificateID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Certificate{}).Where("certificate_id = ?", certificateID).Count(&count).Error
	return count > 0, err
}

// UpgradeScore 仅当新分数严格更高时更新分数与签发日期；completed_at 不变
func (r *CertificateRepository) UpgradeScore(ctx context.Context, studentID uint, courseID, examID string, score int, issuedAt time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Certificate{}).
		Where("student_id = ? AND course_id = ? AND exam_score < ?", studentID, courseID, score).
		Updates(map[string]interface{}{
			"exam_score": score,
			"percentage": score,
			"issue_date": issuedAt,
			"exam_id":    examID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.WithContext(ctx).Where("student_id = ?", studentID).Order("issue_date DESC").Find(&certs).Error
	return certs, err
}

func (r *CertificateRepository) DeleteByCertificateID(ctx context.Context, certificateID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("certificate_id = ?", certificateID).Delete(&model.Certificate{})
	return res.RowsAffected, res.Error
}
