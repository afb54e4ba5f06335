package service

import (
	"context"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	ReasonAlreadyCertified     = "already_certified"
	ReasonAlreadyPassed        = "already_passed"
	ReasonInsufficientProgress = "insufficient_progress"
)

type ExamSummary struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Duration            int    `json:"duration"`
	PassingScore        int    `json:"passingScore"`
	ActivationThreshold int    `json:"activationThreshold"`
	QuestionCount       int    `json:"questionCount"`
	PreviousAttempts    int64  `json:"previousAttempts"`
	PendingApproval     bool   `json:"pendingApproval"`
}

type EligibilityDecision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
	// Terminal 表示该学生不会再获得资格；否则进度达标后可重试
	Terminal      bool         `json:"terminal"`
	CertificateID string       `json:"certificateId,omitempty"`
	Score         *int         `json:"score,omitempty"`
	Progress      *float64     `json:"progress,omitempty"`
	Threshold     *int         `json:"threshold,omitempty"`
	Exam          *ExamSummary `json:"exam,omitempty"`
}

type EligibilityService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.ExamAttemptRepository
	ResultRepo  *repository.ExamResultRepository
	CertRepo    *repository.CertificateRepository
	Progress    ProgressProvider
}

func NewEligibilityService(
	examRepo *repository.ExamRepository,
	attemptRepo *repository.ExamAttemptRepository,
	resultRepo *repository.ExamResultRepository,
	certRepo *repository.CertificateRepository,
	progress ProgressProvider,
) *EligibilityService {
	return &EligibilityService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		ResultRepo:  resultRepo,
		CertRepo:    certRepo,
		Progress:    progress,
	}
}

// CheckEligibility 按优先级依次判断：已获证书 > 已通过 > 进度不足 > 可参加
func (s *EligibilityService) CheckEligibility(ctx context.Context, studentID uint, courseID string) (decision *EligibilityDecision, err error) {
	ctx, span := tracing.StartSpan(ctx, "EligibilityService.CheckEligibility",
		attribute.Int("student.id", int(studentID)),
		attribute.String("course.id", courseID))
	defer func() { tracing.EndSpan(span, err) }()

	cert, err := s.CertRepo.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		// 已获证书后遗留的未完成尝试没有意义，顺手清理
		removed, err := s.AttemptRepo.DeleteIncompleteByCourse(ctx, studentID, courseID)
		if err != nil {
			return nil, err
		}
		if removed > 0 {
			logger.Log.Info("Removed orphaned attempts for certified student",
				zap.Uint("student_id", studentID),
				zap.String("course_id", courseID),
				zap.Int64("count", removed))
		}
		score := cert.ExamScore
		return &EligibilityDecision{
			Reason:        ReasonAlreadyCertified,
			Message:       "You have already been certified for this course",
			Terminal:      true,
			CertificateID: cert.CertificateID,
			Score:         &score,
		}, nil
	}

	exam, err := s.ExamRepo.FindSelectableByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}

	pass, err := s.ResultRepo.FindPass(ctx, studentID, exam.ID)
	if err != nil {
		return nil, err
	}
	if pass != nil {
		score := pass.Score
		return &EligibilityDecision{
			Reason:   ReasonAlreadyPassed,
			Message:  fmt.Sprintf("You have already passed this exam with a score of %d", pass.Score),
			Terminal: true,
			Score:    &score,
		}, nil
	}

	progress, err := s.Progress.CourseProgress(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if progress < float64(exam.ActivationThreshold) {
		threshold := exam.ActivationThreshold
		return &EligibilityDecision{
			Reason:    ReasonInsufficientProgress,
			Message:   fmt.Sprintf("Complete at least %d%% of the course to unlock the exam", exam.ActivationThreshold),
			Progress:  &progress,
			Threshold: &threshold,
		}, nil
	}

	completed, err := s.AttemptRepo.CountCompleted(ctx, studentID, exam.ID)
	if err != nil {
		return nil, err
	}
	return &EligibilityDecision{
		Eligible: true,
		Message:  "You are eligible to take this exam",
		Exam: &ExamSummary{
			ID:                  exam.ID,
			Title:               exam.Title,
			Duration:            exam.Duration,
			PassingScore:        exam.PassingScore,
			ActivationThreshold: exam.ActivationThreshold,
			QuestionCount:       exam.QuestionCount(),
			PreviousAttempts:    completed,
			PendingApproval:     exam.ApprovalStatus == model.ApprovalPending,
		},
	}, nil
}
