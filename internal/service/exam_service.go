package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ExamService struct {
	Repo     *repository.ExamRepository
	Attempts *repository.ExamAttemptRepository
	Courses  CourseDirectory
	Now      func() time.Time
}

func NewExamService(repo *repository.ExamRepository, attempts *repository.ExamAttemptRepository, courses CourseDirectory) *ExamService {
	return &ExamService{Repo: repo, Attempts: attempts, Courses: courses, Now: time.Now}
}

type ExamQuestionReq struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	// 单个下标或下标数组
	CorrectAnswers json.RawMessage `json:"correctAnswers"`
	Explanation    string          `json:"explanation"`
}

type CreateExamReq struct {
	CourseID            string            `json:"courseId"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	Duration            int               `json:"duration"`
	PassingScore        *int              `json:"passingScore"`
	ActivationThreshold *int              `json:"activationThreshold"`
	Status              string            `json:"status"`
	Questions           []ExamQuestionReq `json:"questions"`
}

type UpdateExamReq struct {
	Title               *string            `json:"title"`
	Description         *string            `json:"description"`
	Duration            *int               `json:"duration"`
	PassingScore        *int               `json:"passingScore"`
	ActivationThreshold *int               `json:"activationThreshold"`
	Status              *string            `json:"status"`
	Questions           *[]ExamQuestionReq `json:"questions"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrValidation, fmt.Sprintf(format, args...))
}

// BuildQuestions 校验题目并把正确答案归一化为下标集合
func BuildQuestions(reqs []ExamQuestionReq) ([]model.ExamQuestion, error) {
	if len(reqs) == 0 {
		return nil, invalid("at least one question is required")
	}
	questions := make([]model.ExamQuestion, 0, len(reqs))
	for i, q := range reqs {
		n := i + 1
		if strings.TrimSpace(q.Text) == "" {
			return nil, invalid("question %d: text is required", n)
		}
		if len(q.Options) < 2 {
			return nil, invalid("question %d: at least two options are required", n)
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return nil, invalid("question %d: option %d is empty", n, j+1)
			}
		}
		correct, err := model.ParseAnswerSet(q.CorrectAnswers)
		if errors.Is(err, model.ErrUnanswered) || (err == nil && len(correct) == 0) {
			return nil, invalid("question %d: no correct answer", n)
		}
		if err != nil {
			return nil, invalid("question %d: %v", n, err)
		}
		for _, idx := range correct {
			if idx >= len(q.Options) {
				return nil, invalid("question %d: correct answer %d is out of range", n, idx)
			}
		}
		questions = append(questions, model.ExamQuestion{
			Text:           strings.TrimSpace(q.Text),
			Options:        q.Options,
			CorrectAnswers: correct,
			Explanation:    q.Explanation,
		})
	}
	return questions, nil
}

func validateExamParams(title string, duration, passingScore, threshold int) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title is required")
	}
	if duration <= 0 {
		return invalid("duration must be a positive number of minutes")
	}
	if passingScore < 0 || passingScore > 100 {
		return invalid("passingScore must be between 0 and 100")
	}
	if threshold < 0 || threshold > 100 {
		return invalid("activationThreshold must be between 0 and 100")
	}
	return nil
}

func parseExamStatus(s string) (model.ExamStatus, error) {
	switch model.ExamStatus(s) {
	case "":
		return model.ExamDraft, nil
	case model.ExamDraft, model.ExamPublished:
		return model.ExamStatus(s), nil
	}
	return "", invalid("status must be draft or published")
}

func (s *ExamService) CreateExam(ctx context.Context, creatorID uint, req CreateExamReq) (exam *model.Exam, err error) {
	ctx, span := tracing.StartSpan(ctx, "ExamService.CreateExam", attribute.String("course.id", req.CourseID))
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(req.CourseID) == "" {
		return nil, invalid("courseId is required")
	}
	if req.PassingScore == nil {
		return nil, invalid("passingScore is required")
	}
	threshold := 0
	if req.ActivationThreshold != nil {
		threshold = *req.ActivationThreshold
	}
	if err := validateExamParams(req.Title, req.Duration, *req.PassingScore, threshold); err != nil {
		return nil, err
	}
	status, err := parseExamStatus(req.Status)
	if err != nil {
		return nil, err
	}
	questions, err := BuildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	if _, err := s.Courses.FindCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	exists, err := s.Repo.ExistsActiveForCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrDuplicateExam
	}

	courseKey := req.CourseID
	exam = &model.Exam{
		CourseID:            req.CourseID,
		ActiveCourseKey:     &courseKey,
		Title:               strings.TrimSpace(req.Title),
		Description:         req.Description,
		Questions:           questions,
		Duration:            req.Duration,
		PassingScore:        *req.PassingScore,
		ActivationThreshold: threshold,
		Status:              status,
		ApprovalStatus:      model.ApprovalPending,
		CreatedBy:           creatorID,
	}
	if err := s.Repo.Create(ctx, exam); err != nil {
		// 并发创建时由唯一索引兜底
		if repository.IsDuplicateKey(err) {
			return nil, util.ErrDuplicateExam
		}
		return nil, err
	}

	logger.Log.Info("Exam created",
		zap.String("exam_id", exam.ID),
		zap.String("course_id", exam.CourseID),
		zap.Uint("created_by", creatorID),
		zap.Int("questions", exam.QuestionCount()))
	return exam, nil
}

func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	exam, err := s.Repo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}
	return exam, nil
}

func (s *ExamService) ListByCourse(ctx context.Context, courseID string, includeArchived bool) ([]model.Exam, error) {
	return s.Repo.ListByCourse(ctx, courseID, includeArchived)
}

func canManage(exam *model.Exam, actorID uint, role model.UserRole) bool {
	return role == model.Admin || exam.CreatedBy == actorID
}

// UpdateExam 审核通过前允许修改；修改后重新进入待审核
func (s *ExamService) UpdateExam(ctx context.Context, examID string, actorID uint, role model.UserRole, req UpdateExamReq) (*model.Exam, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !canManage(exam, actorID, role) {
		return nil, util.ErrPermissionDenied
	}
	if exam.Archived || exam.ApprovalStatus == model.ApprovalApproved {
		return nil, util.ErrExamNotEditable
	}

	if req.Title != nil {
		exam.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Duration != nil {
		exam.Duration = *req.Duration
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}
	if req.ActivationThreshold != nil {
		exam.ActivationThreshold = *req.ActivationThreshold
	}
	if req.Status != nil {
		status, err := parseExamStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		exam.Status = status
	}
	if req.Questions != nil {
		questions, err := BuildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
		// 进行中的尝试按旧题目生成了呈现顺序，有人作答时题目不可替换
		inProgress, err := s.Attempts.CountInProgressByExam(ctx, exam.ID)
		if err != nil {
			return nil, err
		}
		if inProgress > 0 {
			return nil, withDetails(
				fmt.Errorf("%w: %d attempts in progress", util.ErrExamNotEditable, inProgress),
				map[string]interface{}{"inProgressAttempts": inProgress},
			)
		}
		exam.Questions = questions
	}
	if err := validateExamParams(exam.Title, exam.Duration, exam.PassingScore, exam.ActivationThreshold); err != nil {
		return nil, err
	}

	exam.ApprovalStatus = model.ApprovalPending
	exam.RejectionReason = ""
	exam.ReviewedBy = nil
	exam.ReviewedAt = nil
	if err := s.Repo.Save(ctx, exam); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam updated", zap.String("exam_id", exam.ID), zap.Uint("actor_id", actorID))
	return exam, nil
}

func (s *ExamService) ApproveExam(ctx context.Context, examID string, reviewerID uint) (*model.Exam, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Archived {
		return nil, util.ErrExamNotEditable
	}
	now := s.Now()
	exam.ApprovalStatus = model.ApprovalApproved
	exam.RejectionReason = ""
	exam.ReviewedBy = &reviewerID
	exam.ReviewedAt = &now
	if err := s.Repo.Save(ctx, exam); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam approved", zap.String("exam_id", exam.ID), zap.Uint("reviewer_id", reviewerID))
	return exam, nil
}

func (s *ExamService) RejectExam(ctx context.Context, examID string, reviewerID uint, reason string) (*model.Exam, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason is required")
	}
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Archived {
		return nil, util.ErrExamNotEditable
	}
	now := s.Now()
	exam.ApprovalStatus = model.ApprovalRejected
	exam.RejectionReason = reason
	exam.ReviewedBy = &reviewerID
	exam.ReviewedAt = &now
	if err := s.Repo.Save(ctx, exam); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam rejected", zap.String("exam_id", exam.ID), zap.Uint("reviewer_id", reviewerID))
	return exam, nil
}

// ArchiveExam 考试不删除只归档；归档后课程可以重新创建考试
func (s *ExamService) ArchiveExam(ctx context.Context, examID string, actorID uint, role model.UserRole) (*model.Exam, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !canManage(exam, actorID, role) {
		return nil, util.ErrPermissionDenied
	}
	if exam.Archived {
		return exam, nil
	}
	if err := s.Repo.Archive(ctx, exam, s.Now()); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam archived", zap.String("exam_id", exam.ID), zap.Uint("actor_id", actorID))
	return exam, nil
}
